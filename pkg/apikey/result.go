package apikey

// Result is the outcome of validating a key string. On success Key is set;
// on failure Message explains why.
type Result struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Key     *PersistedKey `json:"-"`
}

func failure(message string) *Result {
	return &Result{Message: message}
}

func success(key *PersistedKey) *Result {
	return &Result{Success: true, Key: key}
}
