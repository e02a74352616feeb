package cli

// Prompter asks the user for input. Commands depend on this interface so
// tests can script the answers.
type Prompter interface {
	Select(label string, items []string, defaultValue string) (int, string, error)
	Prompt(label string) (string, error)
	Confirm(label string, defaultYes bool) (bool, error)
}
