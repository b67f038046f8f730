package chat

import (
	_ "embed"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed prompt/persona.yaml
var defaultPersona []byte

// Persona is the fixed character bound to an assistant session. Greeting opens the
// transcript; Unavailable and Apology are the in-character failure messages.
type Persona struct {
	Name        string `yaml:"name"`
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"`
	Greeting    string `yaml:"greeting"`
	Unavailable string `yaml:"unavailable"`
	Apology     string `yaml:"apology"`
}

// DefaultPersona returns the built-in persona
func DefaultPersona() *Persona {
	var p Persona
	if err := yaml.Unmarshal(defaultPersona, &p); err != nil {
		panic("embedded persona is malformed: " + err.Error())
	}
	return &p
}

// LoadPersona reads a YAML persona from filePath. Fields missing from the file keep their
// built-in values. An empty path returns the built-in persona.
func LoadPersona(filePath string) (*Persona, error) {
	p := DefaultPersona()
	if filePath == "" {
		return p, nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read persona file", goerr.V("file", filePath))
	}
	if err := yaml.Unmarshal(content, p); err != nil {
		return nil, goerr.Wrap(err, "failed to parse persona file", goerr.V("file", filePath))
	}
	if p.Instruction == "" {
		return nil, goerr.New("persona instruction is empty", goerr.V("file", filePath))
	}
	return p, nil
}
