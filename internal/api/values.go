package api

import (
	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/wizard"
)

// fileJSON is a chosen file. Ref is set once the file was uploaded in this
// session; without it, or with a ref issued for another kind, the entry is
// metadata only.
type fileJSON struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
}

// valuesJSON is the wire form of form.Values.
type valuesJSON struct {
	Fields map[string]string   `json:"fields"`
	Lists  map[string][]string `json:"lists,omitempty"`
	Files  map[string]fileJSON `json:"files,omitempty"`
}

func (p valuesJSON) values() form.Values {
	v := form.NewValues()
	for k, val := range p.Fields {
		v.Set(k, val)
	}
	for k, items := range p.Lists {
		v.SetList(k, items)
	}
	for k, f := range p.Files {
		meta := form.FileMeta{Name: f.Name, Size: f.Size, Type: f.Type}
		if ownedRef(k, f.Ref) {
			v.Attach(k, form.Artifact{Meta: meta, Ref: f.Ref})
			continue
		}
		v.Files[k] = meta
	}
	return v
}

func ownedRef(field, ref string) bool {
	if ref == "" {
		return false
	}
	kind, ok := wizard.ArtifactKinds[field]
	return !ok || kind.Owns(ref)
}

func toValuesJSON(v form.Values) valuesJSON {
	out := valuesJSON{Fields: v.Fields, Lists: v.Lists, Files: map[string]fileJSON{}}
	for k, meta := range v.Files {
		out.Files[k] = fileJSON{Name: meta.Name, Size: meta.Size, Type: meta.Type}
	}
	return out
}

type stepResponse struct {
	OK     bool              `json:"ok"`
	Step   int               `json:"step"`
	Errors map[string]string `json:"errors,omitempty"`
}

type draftResponse struct {
	Values valuesJSON `json:"values"`
	Step   int        `json:"step"`
}
