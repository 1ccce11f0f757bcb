// Package secret resolves credentials referenced from configuration.
//
// Values may contain ${VAR} references, expanded strictly (see
// ExpandEnvStrict), and secret references of the form
//
//	secretref:<provider>:<ref>
//
// either as the whole value or inline ("Bearer secretref:env:API_TOKEN").
// The env provider reads process environment variables; the file provider
// reads files under a root directory, such as mounted container secrets.
package secret
