package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet.
// Zero defaults leave the resolved value to env, .env and settings defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for the HTTP server")
	flags.IntP("port", "p", 0, "Port for the HTTP server")

	flags.StringP("auth-type", "a", "", "Caller identity: header or jwt")
	flags.String("auth-jwt-secret", "", "HS256 secret for bearer tokens")
	flags.String("auth-jwt-role-claim", "", "JWT claim holding the caller's role")
	flags.String("auth-header-subject", "", "Header carrying the caller's subject")
	flags.String("auth-header-role", "", "Header carrying the caller's role")

	flags.StringP("corpus-dir", "c", "", "Directory of Markdown documents to index")
	flags.StringP("index-dir", "i", "", "Directory holding the compiled index")
	flags.Bool("index-watch", false, "Reload the index when it is rebuilt")

	flags.IntP("top-k", "k", 0, "Maximum number of documents retrieved per question")
	flags.Float64("score-threshold", 0, "Minimum relevance score of a retrieved document")

	flags.String("backend-url", "", "Generation backend endpoint")
	flags.StringP("backend-model", "m", "", "Generation model name")
	flags.Int("backend-context-window", 0, "Generation context window in tokens")
	flags.Duration("backend-timeout", 0, "Time to wait for the backend to start answering")

	flags.String("history-store", "", "Conversation history store: memory or redis")
	flags.String("history-redis-url", "", "Redis URL for the redis history store")
	flags.Int("history-max-turns", 0, "Turns kept per conversation")
	flags.Duration("history-ttl", 0, "Idle time after which a conversation expires (0 keeps it)")

	flags.Float64("chat-rate-limit", 0, "Chat requests per second per subject (0 disables)")
	flags.Int("chat-burst", 0, "Chat request burst per subject")

	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("log-file", "", "Also write logs to this rotated file")
}
