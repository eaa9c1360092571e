package analyzer

// sensitiveKeywords mark domain-sensitive work. A match forces the complex
// tier regardless of score; the policy cannot be scored away.
var sensitiveKeywords = []string{
	"auth",
	"authentication",
	"authorization",
	"credential",
	"password",
	"secret",
	"token",
	"identity",
	"certificate",
	"schema",
	"migration",
	"database",
	"encryption",
	"signing",
	"permission",
}

// trivialKeywords mark lightweight, low-risk work.
var trivialKeywords = []string{
	"typo",
	"comment",
	"rename",
	"formatting",
	"whitespace",
	"docs",
	"readme",
	"documentation",
}

// complexKeywords mark structurally heavy work below the sensitivity bar.
var complexKeywords = []string{
	"refactor",
	"redesign",
	"rewrite",
	"restructure",
	"overhaul",
	"concurrency",
	"protocol",
}
