package registry

import (
	"errors"
	"testing"

	"github.com/ohowland/holarchy/internal/pkg/holon"
	"gotest.tools/v3/assert"
)

func newRegistry(t *testing.T) *Registry {
	r := New(holon.DefaultHistoryCap)
	for _, s := range holon.InitialTopology() {
		_, err := r.Add(s)
		assert.NilError(t, err)
	}
	return r
}

func TestAdd(t *testing.T) {
	r := newRegistry(t)
	assert.Equal(t, r.Len(), 6)

	h, err := r.Add(holon.Spec{ID: "ev-1", Name: "EV Fleet", Type: holon.Consumer, ParentID: "residential-1", BaseDemand: 40})
	assert.NilError(t, err)
	assert.Equal(t, h.Status, holon.Operational)
	assert.Equal(t, h.History.Len(), 0)
	assert.Equal(t, r.Len(), 7)

	all := r.All()
	assert.Equal(t, all[len(all)-1].ID, "ev-1")
}

func TestAddDuplicate(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Add(holon.Spec{ID: "factory-1", Type: holon.Consumer, ParentID: holon.RootID})
	assert.Assert(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, r.Len(), 6)
}

func TestAddUnknownParent(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Add(holon.Spec{ID: "x", Type: holon.Consumer, ParentID: "nowhere"})
	assert.Assert(t, errors.Is(err, ErrUnknownHolon))
}

func TestRemoveRootRejected(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Remove(holon.RootID)
	assert.Assert(t, errors.Is(err, ErrProtectedNode))
	assert.Equal(t, r.Len(), 6)
}

func TestRemoveRehomesChildren(t *testing.T) {
	r := newRegistry(t)
	assert.NilError(t, r.Reparent("solar-farm-1", "residential-1"))
	assert.NilError(t, r.Reparent("factory-1", "residential-1"))

	removed, err := r.Remove("residential-1")
	assert.NilError(t, err)
	assert.Equal(t, removed.Name, "Subdivision Alpha")

	solar, _ := r.Get("solar-farm-1")
	factory, _ := r.Get("factory-1")
	assert.Equal(t, solar.ParentID, holon.RootID)
	assert.Equal(t, factory.ParentID, holon.RootID)

	_, ok := r.Get("residential-1")
	assert.Assert(t, !ok)
	assert.Equal(t, r.Len(), 5)
}

func TestRemoveRehomesOneLevel(t *testing.T) {
	r := newRegistry(t)
	assert.NilError(t, r.Reparent("solar-farm-1", "residential-1"))
	assert.NilError(t, r.Reparent("factory-1", "solar-farm-1"))

	_, err := r.Remove("residential-1")
	assert.NilError(t, err)

	factory, _ := r.Get("factory-1")
	assert.Equal(t, factory.ParentID, "solar-farm-1")
}

func TestRemoveUnknown(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Remove("ghost")
	assert.Assert(t, errors.Is(err, ErrUnknownHolon))
}

func TestReparentRootRejected(t *testing.T) {
	r := newRegistry(t)
	for _, parent := range []string{"", "factory-1", holon.RootID} {
		err := r.Reparent(holon.RootID, parent)
		assert.Assert(t, errors.Is(err, ErrProtectedNode))
	}
	root, _ := r.Get(holon.RootID)
	assert.Equal(t, root.ParentID, "")
}

func TestReparentIsland(t *testing.T) {
	r := newRegistry(t)
	assert.NilError(t, r.Reparent("wind-turbine-1", ""))
	wind, _ := r.Get("wind-turbine-1")
	assert.Equal(t, wind.ParentID, "")
}

func TestReparentRejectsCycle(t *testing.T) {
	r := newRegistry(t)
	assert.NilError(t, r.Reparent("solar-farm-1", "residential-1"))
	assert.NilError(t, r.Reparent("factory-1", "solar-farm-1"))

	err := r.Reparent("residential-1", "factory-1")
	assert.Assert(t, errors.Is(err, ErrCycle))

	err = r.Reparent("factory-1", "factory-1")
	assert.Assert(t, errors.Is(err, ErrCycle))

	res, _ := r.Get("residential-1")
	assert.Equal(t, res.ParentID, holon.RootID)
}

func TestToggle(t *testing.T) {
	r := newRegistry(t)
	status, err := r.Toggle("factory-1")
	assert.NilError(t, err)
	assert.Equal(t, status, holon.Maintenance)

	status, err = r.Toggle("factory-1")
	assert.NilError(t, err)
	assert.Equal(t, status, holon.Operational)

	assert.NilError(t, r.SetStatus("factory-1", holon.Overloaded))
	status, _ = r.Toggle("factory-1")
	assert.Equal(t, status, holon.Operational)

	_, err = r.Toggle("ghost")
	assert.Assert(t, errors.Is(err, ErrUnknownHolon))
}

func TestChildrenAndAncestors(t *testing.T) {
	r := newRegistry(t)
	assert.Equal(t, len(r.ChildrenOf(holon.RootID)), 5)

	assert.NilError(t, r.Reparent("solar-farm-1", "residential-1"))
	assert.NilError(t, r.Reparent("factory-1", "solar-farm-1"))

	ancestors, err := r.AncestorsOf("factory-1")
	assert.NilError(t, err)
	assert.Equal(t, len(ancestors), 3)
	assert.Equal(t, ancestors[0].ID, "solar-farm-1")
	assert.Equal(t, ancestors[1].ID, "residential-1")
	assert.Equal(t, ancestors[2].ID, holon.RootID)

	children := r.ChildrenOf("residential-1")
	assert.Equal(t, len(children), 1)
	assert.Equal(t, children[0].ID, "solar-farm-1")
}

func TestFromHolonsRepairsReferences(t *testing.T) {
	r := newRegistry(t)
	list := r.Snapshot()
	for i := range list {
		switch list[i].ID {
		case "factory-1":
			list[i].ParentID = "vanished"
		case "solar-farm-1":
			list[i].ParentID = "wind-turbine-1"
		case "wind-turbine-1":
			list[i].ParentID = "solar-farm-1"
		}
	}

	restored, err := FromHolons(list, 10)
	assert.NilError(t, err)
	assert.Equal(t, restored.Len(), 6)
	assert.Equal(t, restored.HistoryCap(), 10)

	factory, _ := restored.Get("factory-1")
	assert.Equal(t, factory.ParentID, holon.RootID)

	solar, _ := restored.Get("solar-farm-1")
	assert.Equal(t, solar.ParentID, holon.RootID)
	wind, _ := restored.Get("wind-turbine-1")
	assert.Equal(t, wind.ParentID, "solar-farm-1")
}

func TestFromHolonsRequiresRoot(t *testing.T) {
	_, err := FromHolons([]holon.Holon{{ID: "a"}}, 10)
	assert.Assert(t, errors.Is(err, ErrUnknownHolon))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := newRegistry(t)
	list := r.Snapshot()
	list[1].Name = "renamed"
	list[1].History.Push(holon.Reading{Production: 1})

	solar, _ := r.Get(list[1].ID)
	assert.Equal(t, solar.Name, "North Solar Array")
	assert.Equal(t, solar.History.Len(), 0)
}
