package model

import "errors"

// Merge combines finalized models of separate units into a new model.
// Entries keep the order of the models and then of each model's listing.
// Identical definitions collapse, an opaque tag in one unit is completed
// by its definition in another, and a typedef used in one unit may be
// defined in another. Conflicts keep the first definition and are
// returned joined.
func Merge(models ...*Model) (*Model, error) {
	t := newTables()
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range models {
		if m == nil {
			continue
		}
		for _, td := range m.t.typedefSeq {
			add(t.addTypedef(*td))
		}
		for _, r := range m.t.recordSeq {
			add(t.addRecord(*r))
		}
		for _, e := range m.t.enumSeq {
			_, added, err := t.addEnum(*e)
			add(err)
			if added {
				for _, item := range e.Items {
					add(t.addEnumerator(item))
				}
			}
		}
		for _, f := range m.t.functionSeq {
			add(t.addFunction(*f))
		}
		for _, v := range m.t.variableSeq {
			add(t.addVariable(*v))
		}
		for _, c := range m.t.constantSeq {
			add(t.addConstant(*c))
		}
		t.refs = append(t.refs, m.t.refs...)
	}
	return &Model{t: t}, errors.Join(errs...)
}
