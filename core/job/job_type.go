package job

import "fmt"

type InputType string

const (
	InputTypeFile     InputType = "file"
	InputTypeFiles    InputType = "files"
	InputTypeProperty InputType = "property"
)

func (t InputType) IsFile() bool {
	return t == InputTypeFile || t == InputTypeFiles
}

// Key identifies a job type, versions are immutable once a job uses them.
type Key struct {
	Name    string
	Version string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Name, k.Version)
}

type JobType struct {
	ID          int64
	Name        string
	Version     string
	RevisionNum int
	Priority    int
	MaxTries    int
	Interface   Interface
}

func (t *JobType) Key() Key {
	return Key{Name: t.Name, Version: t.Version}
}

type InterfaceInput struct {
	Name       string    `json:"name"`
	Type       InputType `json:"type"`
	Required   bool      `json:"required"`
	MediaTypes []string  `json:"media_types,omitempty"`
}

type InterfaceOutput struct {
	Name      string    `json:"name"`
	Type      InputType `json:"type"`
	MediaType string    `json:"media_type,omitempty"`
}

// Interface describes what a job type consumes and produces.
type Interface struct {
	Inputs  []InterfaceInput  `json:"input_data"`
	Outputs []InterfaceOutput `json:"output_data"`
}

func (i Interface) Input(name string) (InterfaceInput, bool) {
	for _, in := range i.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InterfaceInput{}, false
}

func (i Interface) Output(name string) (InterfaceOutput, bool) {
	for _, out := range i.Outputs {
		if out.Name == name {
			return out, true
		}
	}
	return InterfaceOutput{}, false
}

func (i Interface) HasFileOutputs() bool {
	for _, out := range i.Outputs {
		if out.Type.IsFile() {
			return true
		}
	}
	return false
}
