package core

import (
	"reflect"
	"testing"
)

func mergeFixtures(t *testing.T) (local, remote Document) {
	t.Helper()
	local = sampleDoc(t)
	remote, err := DecodeDocument([]byte(`{
	 "Алена": {"projects": [
	   {"id": "p1", "name": "remote name", "leads": {"2026-01-05": 99, "2026-01-09": 2},
	    "weeks": {"2026-01-05": {"goal": 1}, "2026-01-12": {"budget": 10, "spend": 5, "goal": 7, "targetCpa": 1}}},
	   {"id": "p7", "name": "new remote project", "leads": {"2026-01-05": 1}}
	 ]},
	 "Ольга": {"projects": [{"id": "p8", "name": "Сочи"}]}
	}`))
	if err != nil {
		t.Fatalf("decode remote: %v", err)
	}
	return local, remote
}

func TestMergeLocalWins(t *testing.T) {
	local, remote := mergeFixtures(t)
	merged := MergeLocalWins(local, remote)

	p, err := merged.Project("Алена", "p1")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if p.Name != "Ростов" {
		t.Fatalf("local name must be kept, got %q", p.Name)
	}
	if p.Leads.At("2026-01-05") != Count(5) {
		t.Fatalf("local lead must win, got %v", p.Leads.At("2026-01-05"))
	}
	if p.Leads.At("2026-01-09") != Count(2) {
		t.Fatalf("remote-only lead must be adopted")
	}
	if !p.Leads.At("2026-01-07").IsNoData() {
		t.Fatalf("local no-data marker lost")
	}
	if p.Weeks["2026-01-05"].Goal != 10 || p.Weeks["2026-01-12"].Goal != 7 {
		t.Fatalf("unexpected weeks %+v", p.Weeks)
	}

	if _, err := merged.Project("Алена", "p7"); err != nil {
		t.Fatalf("remote-only project not adopted: %v", err)
	}
	if _, err := merged.Project("Ольга", "p8"); err != nil {
		t.Fatalf("remote-only member not adopted: %v", err)
	}
	if merged.Member("Денис") != 0 || merged.Member("Ольга") != len(merged.Members)-1 {
		t.Fatalf("local member order not kept")
	}
}

func TestMergeLocalKeysAlwaysWin(t *testing.T) {
	local, remote := mergeFixtures(t)
	merged := MergeLocalWins(local, remote)
	for _, m := range local.Members {
		for _, lp := range m.Projects {
			mp, err := merged.Project(m.Name, lp.ID)
			if err != nil {
				t.Fatalf("project %s missing: %v", lp.ID, err)
			}
			for k, v := range lp.Leads {
				if mp.Leads[k] != v {
					t.Fatalf("lead %s: local %v replaced by %v", k, v, mp.Leads[k])
				}
			}
			for k, v := range lp.Weeks {
				if !reflect.DeepEqual(mp.Weeks[k], v) {
					t.Fatalf("week %s: local %+v replaced by %+v", k, v, mp.Weeks[k])
				}
			}
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	local, remote := mergeFixtures(t)
	once := MergeLocalWins(local, remote)
	twice := MergeLocalWins(once, remote)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\n%+v\n%+v", once, twice)
	}
}

func TestMergeDoesNotAliasRemote(t *testing.T) {
	local, remote := mergeFixtures(t)
	merged := MergeLocalWins(local, remote)
	p, _ := merged.Project("Алена", "p1")
	p.Leads["2026-01-20"] = Count(1)

	rp, _ := remote.Project("Алена", "p1")
	if _, ok := rp.Leads["2026-01-20"]; ok {
		t.Fatalf("merged leads alias the remote map")
	}
}
