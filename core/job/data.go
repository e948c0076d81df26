package job

type File struct {
	ID        int64  `json:"id"`
	MediaType string `json:"media_type,omitempty"`
}

// Value is one named input or output, either a property or a list of files.
type Value struct {
	Name  string  `json:"name"`
	Value *string `json:"value,omitempty"`
	Files []File  `json:"files,omitempty"`
}

func (v Value) IsProperty() bool {
	return v.Value != nil
}

// Data is the payload of a recipe or job input and of a job output.
type Data struct {
	Values      []Value `json:"input_data"`
	WorkspaceID int64   `json:"workspace_id,omitempty"`
}

func NewData() *Data {
	return &Data{Values: []Value{}}
}

func (d *Data) Get(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	for _, v := range d.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// Set replaces a value with the same name or appends a new one.
func (d *Data) Set(v Value) {
	for i := range d.Values {
		if d.Values[i].Name == v.Name {
			d.Values[i] = v
			return
		}
	}
	d.Values = append(d.Values, v)
}

func (d *Data) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.Values))
	for i, v := range d.Values {
		names[i] = v.Name
	}
	return names
}

func PropertyValue(name, value string) Value {
	return Value{Name: name, Value: &value}
}

func FilesValue(name string, files ...File) Value {
	return Value{Name: name, Files: files}
}
