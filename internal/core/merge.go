package core

// MergeLocalWins folds a remote snapshot into the local document.
//
// For every project present on both sides, the remote leads and weeks are
// merged key by key with the local value winning whenever the key exists
// locally. All other local fields are kept. Projects and members that only
// exist remotely are adopted as they are. The merge is idempotent: merging
// the same snapshot twice gives the result of merging it once.
func MergeLocalWins(local, remote Document) Document {
	out := Document{Members: make([]Member, 0, len(local.Members))}

	remoteProjects := make(map[string]Project)
	for _, m := range remote.Members {
		for _, p := range m.Projects {
			remoteProjects[p.ID] = p
		}
	}

	for _, m := range local.Members {
		merged := m
		merged.Projects = make([]Project, len(m.Projects))
		for i, p := range m.Projects {
			if rp, ok := remoteProjects[p.ID]; ok {
				p = mergeProject(p, rp)
			}
			merged.Projects[i] = p
		}
		out.Members = append(out.Members, merged)
	}

	for _, rm := range remote.Members {
		mi := out.Member(rm.Name)
		if mi < 0 {
			out.Members = append(out.Members, rm.clone())
			continue
		}
		for _, rp := range rm.Projects {
			if _, _, exists := out.FindProject(rp.ID); exists {
				continue
			}
			out.Members[mi].Projects = append(out.Members[mi].Projects, rp.clone())
		}
	}
	return out
}

func mergeProject(local, remote Project) Project {
	leads := remote.Leads.clone()
	for day, v := range local.Leads {
		leads[day] = v
	}
	weeks := cloneWeeks(remote.Weeks)
	for week, ws := range local.Weeks {
		weeks[week] = ws
	}
	local.Leads = leads
	local.Weeks = weeks
	return local
}
