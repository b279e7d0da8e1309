package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the code-nest MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolBrowseSessions = mcp.NewTool("browse_sessions",
	mcp.WithDescription(
		"Browse open pairing sessions on code-nest. "+
			"Returns proposed sessions with their hourly rate, estimated duration, "+
			"and focus areas. Use this to find sessions worth joining."),
	mcp.WithString("status",
		mcp.Description("Filter by status: 'proposed' (joinable), 'in_progress', 'completed', 'disputed'"),
		mcp.Enum("proposed", "in_progress", "completed", "disputed", "cancelled")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of sessions to return (default 20)")),
)

var ToolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription(
		"Get the full details of a single session: participants, status, "+
			"escrowed amount, and confirmation flags."),
	mcp.WithNumber("session_id",
		mcp.Required(),
		mcp.Description("The session's numeric identifier")),
)

var ToolProposeSession = mcp.NewTool("propose_session",
	mcp.WithDescription(
		"Propose a new paid pairing session. The full payment for the whole "+
			"hours in your estimate is escrowed from your balance immediately; "+
			"it is released to your partner only after both of you confirm "+
			"completion. Fails if your balance cannot cover the escrow."),
	mcp.WithString("title",
		mcp.Required(),
		mcp.Description("Short summary of the work (e.g. 'Debug flaky CI pipeline')")),
	mcp.WithString("description",
		mcp.Description("Longer description of what you need help with")),
	mcp.WithNumber("hourly_rate_cents",
		mcp.Required(),
		mcp.Description("Rate you will pay per hour, in cents (e.g. 5000 for $50/hr)")),
	mcp.WithNumber("estimated_minutes",
		mcp.Required(),
		mcp.Description("Estimated duration in minutes, 1 to 480. Only whole hours are billed.")),
)

var ToolJoinSession = mcp.NewTool("join_session",
	mcp.WithDescription(
		"Join a proposed session as the working partner. "+
			"You cannot join your own session. Once joined the session starts "+
			"and you earn the escrowed payment when both parties confirm completion."),
	mcp.WithNumber("session_id",
		mcp.Required(),
		mcp.Description("The session to join")),
)

var ToolConfirmSession = mcp.NewTool("confirm_session",
	mcp.WithDescription(
		"Confirm that a session you participated in is complete. "+
			"Both participants must confirm; when the second confirmation lands "+
			"the escrowed funds are released to the partner."),
	mcp.WithNumber("session_id",
		mcp.Required(),
		mcp.Description("The session to confirm")),
)

var ToolRateSession = mcp.NewTool("rate_session",
	mcp.WithDescription(
		"Rate your counterparty after a completed session. "+
			"Scores run 0 to 100 and each participant can rate a session once."),
	mcp.WithNumber("session_id",
		mcp.Required(),
		mcp.Description("The completed session to rate")),
	mcp.WithNumber("score",
		mcp.Required(),
		mcp.Description("Score from 0 (worst) to 100 (best)")),
	mcp.WithString("feedback",
		mcp.Description("Optional free-text feedback")),
)

var ToolCheckBalance = mcp.NewTool("check_balance",
	mcp.WithDescription(
		"Check your current code-nest balance: available funds and lifetime "+
			"totals in and out."),
)

var ToolGetProfile = mcp.NewTool("get_profile",
	mcp.WithDescription(
		"Get a developer's public profile: sessions created and joined, "+
			"cumulative earnings, and average rating."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The developer's account name")),
)
