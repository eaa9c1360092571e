// Package protect provides guardrail detection for proposed changesets.
package protect

// DefaultProtectedPaths are glob patterns for paths no automated change may
// touch without human review.
var DefaultProtectedPaths = []string{
	"**/auth/**",
	"**/security/**",
	"**/migrations/**",
	"**/secrets/**",
	"**/credentials/**",
	"**/certs/**",
	"**/keys/**",
	"**/.ssh/**",
	"**/infra/**",
	"**/terraform/**",
	"**/k8s/**",
	"**/kubernetes/**",
	"**/.github/workflows/**",
}

// DefaultPathKeywords are substrings that flag a path as protected.
var DefaultPathKeywords = []string{
	"secret",
	"credential",
	"password",
	"private_key",
	"apikey",
	"api_key",
}

// DefaultFileTypes are file extensions that are always protected.
var DefaultFileTypes = []string{
	".pem",
	".key",
	".crt",
	".p12",
	".pfx",
	".sql",
	".env",
}

// DefaultForbiddenContent are regular expressions matched against proposed
// file content. A match is a guardrail violation regardless of path.
var DefaultForbiddenContent = []string{
	`(?i)-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`,
	`(?i)aws_secret_access_key\s*=`,
	`(?i)password\s*=\s*["'][^"']+["']`,
	`(?i)api[_-]?key\s*[:=]\s*["'][A-Za-z0-9_\-]{16,}["']`,
	`ghp_[A-Za-z0-9]{36}`,
	`sk-ant-[A-Za-z0-9\-]{20,}`,
}
