package tmr

import (
	"reflect"
	"testing"
)

func TestVoteAndRepairMinorityReplica(t *testing.T) {
	for _, minority := range []Replica{ReplicaA, ReplicaB, ReplicaC} {
		t.Run(minority.String(), func(t *testing.T) {
			reg := New[uint32](7, 0, WithName("state"))
			reg.Upset(minority, 99)

			vote := reg.VoteAndRepair()
			if vote.Value != 7 {
				t.Fatalf("Value = %d, want 7", vote.Value)
			}
			if vote.MajorityLost {
				t.Fatalf("MajorityLost = true, want false")
			}
			if !reflect.DeepEqual(vote.Repaired, []Replica{minority}) {
				t.Fatalf("Repaired = %v, want [%v]", vote.Repaired, minority)
			}
			if got := reg.Peek(); got != [3]uint32{7, 7, 7} {
				t.Fatalf("replicas = %v, want all 7", got)
			}
			if got := reg.ScrubCount(); got != 1 {
				t.Fatalf("ScrubCount = %d, want 1", got)
			}
			if reg.Name() != "state" {
				t.Fatalf("Name = %q, want state", reg.Name())
			}
		})
	}
}

func TestVoteAndRepairNoMajorityResetsToSafe(t *testing.T) {
	reg := New[uint32](1, 4, WithName("state"))
	reg.Upset(ReplicaB, 2)
	reg.Upset(ReplicaC, 3)

	vote := reg.VoteAndRepair()
	if !vote.MajorityLost {
		t.Fatalf("MajorityLost = false, want true")
	}
	if vote.Value != 4 {
		t.Fatalf("Value = %d, want safe value 4", vote.Value)
	}
	if got := reg.Peek(); got != [3]uint32{4, 4, 4} {
		t.Fatalf("replicas = %v, want all 4", got)
	}
	if len(vote.Repaired) != 0 {
		t.Fatalf("Repaired = %v, want none on majority loss", vote.Repaired)
	}
	if got := reg.FailureCount(); got != 1 {
		t.Fatalf("FailureCount = %d, want 1", got)
	}
	if got := reg.ScrubCount(); got != 0 {
		t.Fatalf("ScrubCount = %d, want 0", got)
	}
}

func TestVoteAndRepairIsIdempotentOnAgreement(t *testing.T) {
	reg := New[int](3, 0, WithName("counter"))

	for i := 0; i < 5; i++ {
		vote := reg.VoteAndRepair()
		if !vote.Clean() || vote.Value != 3 {
			t.Fatalf("vote %d = %+v, want clean 3", i, vote)
		}
	}
	if reg.ScrubCount() != 0 || reg.FailureCount() != 0 {
		t.Fatalf("agreeing triple produced activity: scrubs=%d failures=%d", reg.ScrubCount(), reg.FailureCount())
	}
}

func TestVoteAndRepairSecondCallAfterRepairIsClean(t *testing.T) {
	reg := New[int](3, 0, WithName("counter"))
	reg.Upset(ReplicaC, 8)

	if vote := reg.VoteAndRepair(); vote.Clean() {
		t.Fatalf("first vote should report a repair")
	}
	if vote := reg.VoteAndRepair(); !vote.Clean() {
		t.Fatalf("second vote = %+v, want clean", vote)
	}
	if got := reg.ScrubCount(); got != 1 {
		t.Fatalf("ScrubCount = %d, want 1", got)
	}
}

func TestWriteFansOut(t *testing.T) {
	reg := New[int](0, 0, WithName("counter"))
	reg.Upset(ReplicaA, 5)
	reg.Write(9)
	if got := reg.Peek(); got != [3]int{9, 9, 9} {
		t.Fatalf("replicas = %v, want all 9", got)
	}
}

func TestUpsetIgnoresUnknownReplica(t *testing.T) {
	reg := New[int](1, 0, WithName("counter"))
	reg.Upset(Replica(7), 5)
	if got := reg.Peek(); got != [3]int{1, 1, 1} {
		t.Fatalf("replicas = %v, want untouched", got)
	}
}

func TestTwoReplicasAgreeingOnCorruptValueWin(t *testing.T) {
	reg := New[int](1, 0, WithName("counter"))
	reg.Upset(ReplicaA, 5)
	reg.Upset(ReplicaB, 5)

	vote := reg.VoteAndRepair()
	if vote.Value != 5 {
		t.Fatalf("Value = %d, want 5 (any two agreeing wins)", vote.Value)
	}
	if !reflect.DeepEqual(vote.Repaired, []Replica{ReplicaC}) {
		t.Fatalf("Repaired = %v, want [C]", vote.Repaired)
	}
}

type observerLog struct {
	scrubbed []Replica
	lost     int
}

func (o *observerLog) ReplicaScrubbed(r Replica) { o.scrubbed = append(o.scrubbed, r) }
func (o *observerLog) MajorityLost()             { o.lost++ }

func TestObserverSeesRepairsAndMajorityLoss(t *testing.T) {
	obs := &observerLog{}
	reg := New[int](1, 0, WithName("counter"), WithObserver(obs))

	reg.VoteAndRepair()
	if len(obs.scrubbed) != 0 || obs.lost != 0 {
		t.Fatalf("agreeing triple notified observer: %+v", obs)
	}

	reg.Upset(ReplicaB, 4)
	reg.VoteAndRepair()
	if !reflect.DeepEqual(obs.scrubbed, []Replica{ReplicaB}) {
		t.Fatalf("scrubbed = %v, want [B]", obs.scrubbed)
	}

	reg.Upset(ReplicaA, 2)
	reg.Upset(ReplicaB, 3)
	reg.VoteAndRepair()
	if obs.lost != 1 {
		t.Fatalf("MajorityLost calls = %d, want 1", obs.lost)
	}
	if len(obs.scrubbed) != 1 {
		t.Fatalf("scrubbed = %v, want no repair reported on majority loss", obs.scrubbed)
	}
}

func TestVotedDoesNotRepair(t *testing.T) {
	reg := New[int](1, 9, WithName("counter"))
	reg.Upset(ReplicaC, 5)

	if v, ok := reg.Voted(); !ok || v != 1 {
		t.Fatalf("Voted = %d, %v, want 1, true", v, ok)
	}
	if got := reg.Peek(); got != [3]int{1, 1, 5} {
		t.Fatalf("replicas = %v, want minority left in place", got)
	}
	if reg.ScrubCount() != 0 {
		t.Fatalf("ScrubCount = %d, want 0", reg.ScrubCount())
	}

	reg.Upset(ReplicaB, 3)
	if v, ok := reg.Voted(); ok || v != 9 {
		t.Fatalf("Voted = %d, %v, want safe 9, false", v, ok)
	}
	if reg.FailureCount() != 0 {
		t.Fatalf("FailureCount = %d, want 0", reg.FailureCount())
	}
}
