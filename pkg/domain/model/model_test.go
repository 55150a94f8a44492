package model_test

import (
	"fmt"
	"testing"

	"github.com/opst/knitdao/pkg/domain/model"
	"github.com/opst/knitdao/pkg/utils/pointer"
	"github.com/opst/knitdao/pkg/utils/try"
)

type numbered struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

func (n *numbered) Identity() *int64 {
	return n.ID
}

type named struct {
	Key   *string `json:"key,omitempty"`
	Label string  `json:"label"`
}

func (n *named) Identity() *string {
	return n.Key
}

func TestIsNew(t *testing.T) {
	for name, testcase := range map[string]struct {
		given model.Model[int64]
		then  bool
	}{
		"nil identity":      {given: &numbered{ID: nil}, then: true},
		"zero identity":     {given: &numbered{ID: pointer.Ref[int64](0)}, then: true},
		"positive identity": {given: &numbered{ID: pointer.Ref[int64](1)}, then: false},
		"negative identity": {given: &numbered{ID: pointer.Ref[int64](-1)}, then: false},
	} {
		t.Run(name, func(t *testing.T) {
			if actual := model.IsNew(testcase.given); actual != testcase.then {
				t.Errorf("IsNew(%+v) = %v", testcase.given, actual)
			}
		})
	}

	t.Run("string identity", func(t *testing.T) {
		if !model.IsNew[string](&named{Key: pointer.Ref("")}) {
			t.Error("empty key is not new")
		}
		if model.IsNew[string](&named{Key: pointer.Ref("k")}) {
			t.Error("non-empty key is new")
		}
	})
}

func TestToMap(t *testing.T) {
	t.Run("it has properties and new", func(t *testing.T) {
		actual := try.To(model.ToMap[int64](&numbered{ID: pointer.Ref[int64](12), Name: "x"})).OrFatal(t)

		if len(actual) != 3 {
			t.Errorf("unexpected keys: %v", actual)
		}
		if fmt.Sprint(actual["id"]) != "12" {
			t.Errorf("id: %v", actual["id"])
		}
		if actual["name"] != "x" {
			t.Errorf("name: %v", actual["name"])
		}
		if actual["new"] != false {
			t.Errorf("new: %v", actual["new"])
		}
	})

	t.Run("new DTO", func(t *testing.T) {
		actual := try.To(model.ToMap[string](&named{Label: "y"})).OrFatal(t)

		if _, ok := actual["key"]; ok {
			t.Errorf("omitted key is found: %v", actual)
		}
		if actual["new"] != true {
			t.Errorf("new: %v", actual["new"])
		}
	})

	t.Run("excluding", func(t *testing.T) {
		actual := try.To(model.ToMap[int64](
			&numbered{ID: pointer.Ref[int64](12), Name: "x"}, "id", "new",
		)).OrFatal(t)

		if len(actual) != 1 || actual["name"] != "x" {
			t.Errorf("unexpected map: %v", actual)
		}
	})
}
