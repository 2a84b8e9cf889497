package agent

import (
	"fmt"
	"strings"
)

// NoSQL is the sentinel the SQL writer returns when a question needs no query.
const NoSQL = "NO_SQL"

const sqlWriterTemplate = `You are a SQL execution specialist working for a data analyst.

Given the conversation so far, write ONE safe, read-only SELECT statement for
the %[1]s database below that answers the user's latest question.

Rules:
- Reply with the statement only, inside a single ` + "```sql" + ` fenced block.
- SELECT queries only. Never use INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE,
  GRANT, REVOKE, EXEC, EXECUTE, CALL, REPLACE, CREATE or MERGE.
- Use only tables and columns that appear in the schema.
- Do not select columns marked [SENSITIVE] unless the user explicitly asks.
- If the question can be answered without querying the database (greetings,
  questions about you, clarifications), reply with exactly ` + NoSQL + `.

%[2]s
%[3]s`

const supervisorTemplate = `You are a SQL data analyst supervisor coordinating a sql-executor subagent
that runs read-only queries against a %[1]s database.

NEVER generate or allow INSERT, UPDATE, DELETE, DROP, TRUNCATE, or ALTER.`

const planInstruction = `Before the query runs, state your plan in 1-2 sentences: which tables and
columns you expect to use and why. Do not show SQL and do not guess the result.

The sql-executor will run:
%s`

const summaryInstruction = `The sql-executor returned this JSON result:
%s

Summarise the result for the user in clear, plain English. Be concise. If the
result contains an error, explain what went wrong in plain terms.`

const retryInstruction = `The previous statement failed:
%s

Error: %s

Write a corrected statement following the same rules.`

const directAnswerInstruction = `Answer the user's latest message directly and briefly. No database query is
needed for it.`

func sqlWriterPrompt(dialect, schemaContext string, cp checkpoint) string {
	var previous string
	if cp.LastSQL != "" {
		previous = fmt.Sprintf("The previous query in this conversation was:\n```sql\n%s\n```\n", cp.LastSQL)
	}
	return fmt.Sprintf(sqlWriterTemplate, dialect, schemaContext, previous)
}

func supervisorPrompt(dialect string) string {
	return fmt.Sprintf(supervisorTemplate, dialect)
}

// isNoSQL reports whether the writer declined to produce a query.
func isNoSQL(reply string) bool {
	reply = strings.Trim(strings.TrimSpace(reply), "`.")
	return reply == "" || strings.EqualFold(reply, NoSQL)
}
