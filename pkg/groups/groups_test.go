package groups

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
)

func count(members []string, id string) int {
	n := 0
	for _, m := range members {
		if m == id {
			n++
		}
	}
	return n
}

func TestAddMemberAddsOneOccurrence(t *testing.T) {
	idx := New()
	for i := 1; i <= 3; i++ {
		idx.AddMember("room1", "a")
		members, ok := idx.Members("room1")
		if !ok {
			t.Fatalf("room1 should exist after AddMember")
		}
		if got := count(members, "a"); got != i {
			t.Errorf("After %d adds, a appears %d times", i, got)
		}
	}
}

func TestMembersKeepsOrder(t *testing.T) {
	idx := New()
	idx.AddMember("room1", "a")
	idx.AddMember("room1", "b")
	idx.AddMember("room1", "c")

	members, _ := idx.Members("room1")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(want, members) {
		t.Errorf("Members; wanted %v, got %v", want, members)
	}
}

func TestRemoveMember(t *testing.T) {
	idx := New()
	idx.AddMember("room1", "a")
	idx.AddMember("room1", "b")
	idx.AddMember("room1", "a")

	if removed := idx.RemoveMember("room1", "a"); removed != 2 {
		t.Errorf("Removed %d occurrences, want 2", removed)
	}
	members, _ := idx.Members("room1")
	if want := []string{"b"}; !reflect.DeepEqual(want, members) {
		t.Errorf("Members; wanted %v, got %v", want, members)
	}

	if removed := idx.RemoveMember("room1", "zzz"); removed != 0 {
		t.Errorf("Removing an absent member removed %d", removed)
	}
	if removed := idx.RemoveMember("nowhere", "b"); removed != 0 {
		t.Errorf("Removing from an unknown group removed %d", removed)
	}
}

func TestEmptyGroupPersists(t *testing.T) {
	idx := New()
	if _, ok := idx.Members("room1"); ok {
		t.Fatalf("Unknown group reported as existing")
	}

	idx.AddMember("room1", "a")
	idx.RemoveMember("room1", "a")
	members, ok := idx.Members("room1")
	if !ok {
		t.Fatalf("Emptied group should still exist")
	}
	if len(members) != 0 {
		t.Errorf("Emptied group has members %v", members)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestMembersReturnsCopy(t *testing.T) {
	idx := New()
	idx.AddMember("room1", "a")
	members, _ := idx.Members("room1")
	members[0] = "mutated"

	idx.AddMember("room1", "b")
	idx.RemoveMember("room1", "a")
	again, _ := idx.Members("room1")
	if want := []string{"b"}; !reflect.DeepEqual(want, again) {
		t.Errorf("Group was affected by mutating a snapshot; got %v", again)
	}
	if members[0] != "mutated" || len(members) != 1 {
		t.Errorf("Snapshot was affected by later group changes; got %v", members)
	}
}

func TestConcurrentMembership(t *testing.T) {
	idx := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("room%d", i%2)
			id := fmt.Sprintf("conn%d", i)
			for j := 0; j < 500; j++ {
				idx.AddMember(name, id)
				idx.Members(name)
				idx.RemoveMember(name, id)
			}
			idx.AddMember(name, id)
		}(i)
	}
	wg.Wait()

	names := idx.Names()
	sort.Strings(names)
	if want := []string{"room0", "room1"}; !reflect.DeepEqual(want, names) {
		t.Fatalf("Names; wanted %v, got %v", want, names)
	}
	for _, name := range names {
		members, _ := idx.Members(name)
		if len(members) != 4 {
			t.Errorf("%s has %d members, want 4: %v", name, len(members), members)
		}
	}
}
