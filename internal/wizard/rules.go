// Package wizard defines the concrete steps of the application wizard and the
// terms acceptance wizard on top of the generic form controller.
package wizard

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/PartnerGate/internal/form"
)

var validate = validator.New()

// rule checks one field against a validator tag.
type rule struct {
	field string
	tag   string
	msg   string
}

func req(field string) rule {
	return rule{field: field, tag: "required", msg: "this field is required"}
}

func format(field, tag, msg string) rule {
	return rule{field: field, tag: "omitempty," + tag, msg: msg}
}

// when applies rs only if cond holds for the values.
type conditional struct {
	cond  func(v form.Values) bool
	rules []rule
}

func when(cond func(v form.Values) bool, rs ...rule) conditional {
	return conditional{cond: cond, rules: rs}
}

func fieldIs(field, want string) func(v form.Values) bool {
	return func(v form.Values) bool { return strings.EqualFold(v.Get(field), want) }
}

func checkRules(errs form.FieldErrors, v form.Values, rs []rule) {
	for _, r := range rs {
		if _, failed := errs[r.field]; failed {
			continue
		}
		if err := validate.Var(v.Get(r.field), r.tag); err != nil {
			errs.Add(r.field, r.msg)
		}
	}
}

// rules builds a step validator from plain rules and conditionals.
func rules(rs []rule, conds ...conditional) form.Validator {
	return func(v form.Values) form.FieldErrors {
		errs := form.FieldErrors{}
		checkRules(errs, v, rs)
		for _, c := range conds {
			if c.cond(v) {
				checkRules(errs, v, c.rules)
			}
		}
		return errs
	}
}

// nonEmptyLists requires at least one selected item per list field.
func nonEmptyLists(fields ...string) form.Validator {
	return func(v form.Values) form.FieldErrors {
		errs := form.FieldErrors{}
		for _, f := range fields {
			n := 0
			for _, item := range v.List(f) {
				if strings.TrimSpace(item) != "" {
					n++
				}
			}
			if n == 0 {
				errs.Add(f, "select at least one option")
			}
		}
		return errs
	}
}

func all(vs ...form.Validator) form.Validator {
	return func(v form.Values) form.FieldErrors {
		errs := form.FieldErrors{}
		for _, fn := range vs {
			errs.Merge(fn(v))
		}
		return errs
	}
}

func truthy(v form.Values, field string) bool {
	switch strings.ToLower(v.Get(field)) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}

func mustAccept(field, msg string) form.Validator {
	return func(v form.Values) form.FieldErrors {
		errs := form.FieldErrors{}
		if !truthy(v, field) {
			errs.Add(field, msg)
		}
		return errs
	}
}
