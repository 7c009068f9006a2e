// Package form drives resumable multi-step forms: per-step validation,
// fail-open existence checks, draft persistence, resume-step inference and a
// single-submission guard.
package form

import "strings"

// FileMeta is the lightweight description of a chosen file. It is the only
// part of a file that survives in a draft.
type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Artifact is a live, non-restorable handle on a chosen file: the bytes the
// user picked or the object reference they were uploaded to in this session.
type Artifact struct {
	Meta FileMeta
	Ref  string
	Data []byte
}

// Values is the shared field set of a form. Artifacts never serialize.
type Values struct {
	Fields    map[string]string   `json:"fields,omitempty"`
	Lists     map[string][]string `json:"lists,omitempty"`
	Files     map[string]FileMeta `json:"files,omitempty"`
	Artifacts map[string]Artifact `json:"-"`
}

func NewValues() Values {
	return Values{
		Fields:    map[string]string{},
		Lists:     map[string][]string{},
		Files:     map[string]FileMeta{},
		Artifacts: map[string]Artifact{},
	}
}

// Get returns a trimmed scalar field.
func (v Values) Get(name string) string {
	return strings.TrimSpace(v.Fields[name])
}

func (v Values) List(name string) []string {
	return v.Lists[name]
}

// Artifact returns the live artifact for a file field.
func (v Values) Artifact(name string) (Artifact, bool) {
	a, ok := v.Artifacts[name]
	return a, ok
}

// Set assigns a scalar field, allocating maps lazily.
func (v *Values) Set(name, value string) {
	if v.Fields == nil {
		v.Fields = map[string]string{}
	}
	v.Fields[name] = value
}

func (v *Values) SetList(name string, items []string) {
	if v.Lists == nil {
		v.Lists = map[string][]string{}
	}
	v.Lists[name] = items
}

// Attach records a live artifact together with its metadata.
func (v *Values) Attach(name string, a Artifact) {
	if v.Artifacts == nil {
		v.Artifacts = map[string]Artifact{}
	}
	if v.Files == nil {
		v.Files = map[string]FileMeta{}
	}
	v.Artifacts[name] = a
	v.Files[name] = a.Meta
}

// Snapshot returns a deep copy holding only serializable data.
func (v Values) Snapshot() Values {
	out := Values{
		Fields: make(map[string]string, len(v.Fields)),
		Lists:  make(map[string][]string, len(v.Lists)),
		Files:  make(map[string]FileMeta, len(v.Files)),
	}
	for k, val := range v.Fields {
		out.Fields[k] = val
	}
	for k, items := range v.Lists {
		out.Lists[k] = append([]string(nil), items...)
	}
	for k, meta := range v.Files {
		out.Files[k] = meta
	}
	return out
}
