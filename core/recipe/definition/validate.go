package definition

import (
	"fmt"

	"github.com/raystack/scale/core/job"
	"github.com/raystack/scale/internal/errors"
)

// Warning is a non fatal validation finding.
type Warning struct {
	Key     string
	Details string
}

// JobTypes resolves the job type of every job node in a definition.
type JobTypes map[job.Key]*job.JobType

// ConnectionInput describes one value a connection is able to provide.
type ConnectionInput struct {
	Name       string
	Type       job.InputType
	MediaTypes []string
	// Optional marks a value the connection may not always provide.
	Optional bool
}

// Connection is what an upstream source, for example a parent recipe,
// promises to hand over to a recipe before the data itself exists.
type Connection struct {
	Inputs       []ConnectionInput
	HasWorkspace bool
}

func (c Connection) input(name string) (ConnectionInput, bool) {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return ConnectionInput{}, false
}

// ValidateData checks recipe input data against the declared inputs.
func (d *Definition) ValidateData(data *job.Data, jobTypes JobTypes) ([]Warning, error) {
	var warnings []Warning
	for _, in := range d.Inputs() {
		value, found := data.Get(in.Name)
		if !found {
			if in.IsRequired() {
				return nil, errors.InvalidData(EntityDefinition, "MISSING_INPUT",
					fmt.Sprintf("Required input '%s' was not provided", in.Name))
			}
			continue
		}

		switch in.Type {
		case job.InputTypeProperty:
			if !value.IsProperty() {
				return nil, errors.InvalidData(EntityDefinition, "INVALID_INPUT",
					fmt.Sprintf("Input '%s' must be a property value", in.Name))
			}
		case job.InputTypeFile:
			if len(value.Files) != 1 {
				return nil, errors.InvalidData(EntityDefinition, "INVALID_INPUT",
					fmt.Sprintf("Input '%s' must be exactly one file, got %d", in.Name, len(value.Files)))
			}
		case job.InputTypeFiles:
			if len(value.Files) == 0 {
				return nil, errors.InvalidData(EntityDefinition, "INVALID_INPUT",
					fmt.Sprintf("Input '%s' must contain at least one file", in.Name))
			}
		}
		warnings = append(warnings, mediaTypeWarnings(in.Name, in.MediaTypes, value.Files)...)
	}

	for _, name := range data.Names() {
		if _, found := d.Input(name); !found {
			warnings = append(warnings, Warning{
				Key:     "UNKNOWN_INPUT",
				Details: fmt.Sprintf("Input '%s' is not used by the recipe", name),
			})
		}
	}

	if d.producesFiles(jobTypes) && (data == nil || data.WorkspaceID == 0) {
		return nil, errors.InvalidData(EntityDefinition, "MISSING_WORKSPACE",
			"No workspace provided for output files")
	}
	return warnings, nil
}

// ValidateConnection checks that a connection can satisfy the declared
// inputs before any data flows through it.
func (d *Definition) ValidateConnection(conn Connection, jobTypes JobTypes) ([]Warning, error) {
	var warnings []Warning
	for _, in := range d.Inputs() {
		provided, found := conn.input(in.Name)
		if !found {
			if in.IsRequired() {
				return nil, errors.InvalidConnection(EntityDefinition, "MISSING_INPUT",
					fmt.Sprintf("Required input '%s' is not provided by the connection", in.Name))
			}
			continue
		}
		if in.IsRequired() && provided.Optional {
			return nil, errors.InvalidConnection(EntityDefinition, "MISSING_INPUT",
				fmt.Sprintf("Required input '%s' may not be provided by the connection", in.Name))
		}
		if !typeAccepts(in.Type, provided.Type) {
			return nil, errors.InvalidConnection(EntityDefinition, "MISMATCHED_TYPE",
				fmt.Sprintf("Input '%s' of type %s cannot accept %s", in.Name, in.Type, provided.Type))
		}
		for _, mt := range provided.MediaTypes {
			if !mediaTypeAllowed(in.MediaTypes, mt) {
				warnings = append(warnings, Warning{
					Key:     "MISMATCHED_MEDIA_TYPES",
					Details: fmt.Sprintf("Input '%s' may receive media type %s it does not accept", in.Name, mt),
				})
			}
		}
	}

	if d.producesFiles(jobTypes) && !conn.HasWorkspace {
		return nil, errors.InvalidConnection(EntityDefinition, "MISSING_WORKSPACE",
			"No workspace provided for output files")
	}
	return warnings, nil
}

// ValidateJobInterfaces checks every binding in the definition against the
// interfaces of the job types it uses.
func (d *Definition) ValidateJobInterfaces(jobTypes JobTypes) ([]Warning, error) {
	var warnings []Warning
	for _, node := range d.Nodes() {
		if node.JobType == nil {
			continue
		}
		jt, ok := jobTypes[job.Key{Name: node.JobType.Name, Version: node.JobType.Version}]
		if !ok {
			return nil, errors.InvalidDefinition(EntityDefinition, KeyUnknownJobType,
				fmt.Sprintf("Job %s uses unknown job type %s:%s", node.Name, node.JobType.Name, node.JobType.Version))
		}

		bound := map[string]bool{}
		for _, ri := range node.RecipeInputs {
			target, ok := jt.Interface.Input(ri.JobInput)
			if !ok {
				return nil, nodeInterfaceError("Job %s has no input %s", node.Name, ri.JobInput)
			}
			source, _ := d.Input(ri.RecipeInput)
			if !typeAccepts(target.Type, source.Type) {
				return nil, nodeInterfaceError("Job %s input %s of type %s cannot accept recipe input %s of type %s",
					node.Name, ri.JobInput, target.Type, ri.RecipeInput, source.Type)
			}
			warnings = append(warnings, connectionMediaWarnings(node.Name, target, source.MediaTypes)...)
			bound[ri.JobInput] = true
		}

		for _, dep := range node.Dependencies {
			parent, _ := d.Node(dep.Name)
			for _, c := range dep.Connections {
				target, ok := jt.Interface.Input(c.Input)
				if !ok {
					return nil, nodeInterfaceError("Job %s has no input %s", node.Name, c.Input)
				}
				if parent.JobType == nil {
					return nil, nodeInterfaceError("Job %s connects input %s to recipe node %s", node.Name, c.Input, dep.Name)
				}
				parentType, ok := jobTypes[job.Key{Name: parent.JobType.Name, Version: parent.JobType.Version}]
				if !ok {
					return nil, errors.InvalidDefinition(EntityDefinition, KeyUnknownJobType,
						fmt.Sprintf("Job %s uses unknown job type %s:%s", dep.Name, parent.JobType.Name, parent.JobType.Version))
				}
				out, ok := parentType.Interface.Output(c.Output)
				if !ok {
					return nil, nodeInterfaceError("Job %s has no output %s", dep.Name, c.Output)
				}
				if !typeAccepts(target.Type, out.Type) {
					return nil, nodeInterfaceError("Job %s input %s of type %s cannot accept output %s of type %s",
						node.Name, c.Input, target.Type, c.Output, out.Type)
				}
				if out.MediaType != "" {
					warnings = append(warnings, connectionMediaWarnings(node.Name, target, []string{out.MediaType})...)
				}
				bound[c.Input] = true
			}
		}

		for _, in := range jt.Interface.Inputs {
			if in.Required && !bound[in.Name] {
				return nil, nodeInterfaceError("Job %s has required input %s that is not connected", node.Name, in.Name)
			}
		}
	}
	return warnings, nil
}

func (d *Definition) producesFiles(jobTypes JobTypes) bool {
	for _, key := range d.JobTypeKeys() {
		if jt, ok := jobTypes[key]; ok && jt.Interface.HasFileOutputs() {
			return true
		}
	}
	return false
}

func nodeInterfaceError(format string, args ...any) error {
	return errors.InvalidDefinition(EntityDefinition, KeyNodeInterface, fmt.Sprintf(format, args...))
}

// typeAccepts reports whether an input of type target can take a value of
// type source. A files input takes a single file, never the other way round.
func typeAccepts(target, source job.InputType) bool {
	if target == source {
		return true
	}
	return target == job.InputTypeFiles && source == job.InputTypeFile
}

func mediaTypeAllowed(allowed []string, mediaType string) bool {
	if len(allowed) == 0 || mediaType == "" {
		return true
	}
	for _, a := range allowed {
		if a == mediaType {
			return true
		}
	}
	return false
}

func mediaTypeWarnings(name string, allowed []string, files []job.File) []Warning {
	var warnings []Warning
	for _, f := range files {
		if !mediaTypeAllowed(allowed, f.MediaType) {
			warnings = append(warnings, Warning{
				Key:     "MISMATCHED_MEDIA_TYPE",
				Details: fmt.Sprintf("Input '%s' does not accept media type %s", name, f.MediaType),
			})
		}
	}
	return warnings
}

func connectionMediaWarnings(nodeName string, target job.InterfaceInput, mediaTypes []string) []Warning {
	var warnings []Warning
	for _, mt := range mediaTypes {
		if !mediaTypeAllowed(target.MediaTypes, mt) {
			warnings = append(warnings, Warning{
				Key:     "MISMATCHED_MEDIA_TYPES",
				Details: fmt.Sprintf("Job %s input %s does not accept media type %s", nodeName, target.Name, mt),
			})
		}
	}
	return warnings
}
