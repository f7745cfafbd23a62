package invoker

import "fmt"

// MissingCredentialError means a provider cannot be attempted because one
// of its required secrets is not configured. It is an expected condition:
// the orchestrator moves on to the next provider.
type MissingCredentialError struct {
	Provider   string
	Credential string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s: missing credential %s", e.Provider, e.Credential)
}

// ProviderCallError wraps any failure of the upstream call itself:
// transport errors, timeouts, non-2xx responses, decode failures.
type ProviderCallError struct {
	Provider string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// EmptyResponseError means the provider answered successfully but returned
// no usable content.
type EmptyResponseError struct {
	Provider string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s: empty response", e.Provider)
}
