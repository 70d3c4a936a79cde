package auth

import "html/template"

// Pages holds the three user-facing HTML pages the redirect server serves,
// parsed once at Auth construction the way the teacher parses its
// approval/login/error templates in server/templates.go.
type Pages struct {
	Login   *template.Template
	Success *template.Template
	Error   *template.Template
}

const defaultLoginPage = `<!DOCTYPE html><html><body><h1>Sign in</h1><p>Redirecting to the provider's consent page.</p></body></html>`

const defaultSuccessPage = `<!DOCTYPE html><html><body><h1>Authorized</h1><p>You may close this window.</p></body></html>`

const defaultErrorPage = `<!DOCTYPE html><html><body><h1>Authorization error</h1><p>{{.Message}}</p></body></html>`

// DefaultPages returns the built-in branding-free templates, used when a
// provider does not supply its own.
func DefaultPages() Pages {
	return Pages{
		Login:   template.Must(template.New("login").Parse(defaultLoginPage)),
		Success: template.Must(template.New("success").Parse(defaultSuccessPage)),
		Error:   template.Must(template.New("error").Parse(defaultErrorPage)),
	}
}
