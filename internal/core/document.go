package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultDocumentID is the key of the single shared document in every store.
const DefaultDocumentID = "main-reports"

var ErrMalformedDocument = errors.New("malformed document")

// Document is the whole shared dataset: members in encounter order.
//
// On the wire it is a JSON object keyed by member name; key order is kept on
// decode and encode so rankings that break ties by encounter order stay
// deterministic across round trips.
type Document struct {
	Members []Member
}

type memberWire struct {
	Projects []Project     `json:"projects"`
	Bundles  []BundleEntry `json:"bundles,omitempty"`
}

// Member returns the index of the named member, or -1.
func (d Document) Member(name string) int {
	for i := range d.Members {
		if d.Members[i].Name == name {
			return i
		}
	}
	return -1
}

// FindProject locates a project by id across all members.
func (d Document) FindProject(id string) (member, project int, ok bool) {
	for mi := range d.Members {
		for pi := range d.Members[mi].Projects {
			if d.Members[mi].Projects[pi].ID == id {
				return mi, pi, true
			}
		}
	}
	return -1, -1, false
}

// Project returns the project with the given id owned by the named member.
func (d Document) Project(owner, id string) (Project, error) {
	mi := d.Member(owner)
	if mi < 0 {
		return Project{}, fmt.Errorf("%w: %s", ErrMemberNotFound, owner)
	}
	for _, p := range d.Members[mi].Projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
}

// ProjectCount returns the number of projects across all members.
func (d Document) ProjectCount() int {
	n := 0
	for _, m := range d.Members {
		n += len(m.Projects)
	}
	return n
}

// TotalLeads sums every positive lead count in the document. It is the
// activity measure that gates persistence.
func (d Document) TotalLeads() int {
	total := 0
	for _, m := range d.Members {
		for _, p := range m.Projects {
			for _, v := range p.Leads {
				if n, ok := v.Count(); ok && n > 0 {
					total += n
				}
			}
		}
	}
	return total
}

// IsEmpty reports whether the document has no members.
func (d Document) IsEmpty() bool {
	return len(d.Members) == 0
}

// Validate checks the dataset-wide invariants: well-formed keys on every
// project and project ids unique across all members.
func (d Document) Validate() error {
	seen := make(map[string]string)
	for _, m := range d.Members {
		if m.Name == "" {
			return fmt.Errorf("%w: member without name", ErrMalformedDocument)
		}
		for _, p := range m.Projects {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("%w: member %s: %v", ErrMalformedDocument, m.Name, err)
			}
			if owner, dup := seen[p.ID]; dup {
				return fmt.Errorf("%w: %s (owned by %s and %s)", ErrDuplicateProject, p.ID, owner, m.Name)
			}
			seen[p.ID] = m.Name
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{Members: make([]Member, len(d.Members))}
	for i, m := range d.Members {
		out.Members[i] = m.clone()
	}
	return out
}

func (m Member) clone() Member {
	out := Member{
		Name:    m.Name,
		Bundles: cloneBundles(m.Bundles),
	}
	if m.Projects != nil {
		out.Projects = make([]Project, len(m.Projects))
		for i, p := range m.Projects {
			out.Projects[i] = p.clone()
		}
	}
	return out
}

func (p Project) clone() Project {
	out := p
	out.Leads = p.Leads.clone()
	out.Weeks = cloneWeeks(p.Weeks)
	out.Bundles = cloneBundles(p.Bundles)
	return out
}

func cloneWeeks(w map[string]WeeklyStats) map[string]WeeklyStats {
	out := make(map[string]WeeklyStats, len(w))
	for k, v := range w {
		v.Bundles = cloneBundles(v.Bundles)
		out[k] = v
	}
	return out
}

func cloneBundles(b []BundleEntry) []BundleEntry {
	if b == nil {
		return nil
	}
	out := make([]BundleEntry, len(b))
	copy(out, b)
	return out
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range d.Members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		projects := m.Projects
		if projects == nil {
			projects = []Project{}
		}
		val, err := json.Marshal(memberWire{Projects: projects, Bundles: m.Bundles})
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if tok == nil {
		*d = Document{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", ErrMalformedDocument)
	}

	var members []Member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected member name", ErrMalformedDocument)
		}
		var w memberWire
		if err := dec.Decode(&w); err != nil {
			return fmt.Errorf("%w: member %s: %v", ErrMalformedDocument, name, err)
		}
		for i := range w.Projects {
			w.Projects[i].normalize()
		}
		members = append(members, Member{Name: name, Projects: w.Projects, Bundles: w.Bundles})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	*d = Document{Members: members}
	return nil
}

// normalize fills maps a stored project may omit.
func (p *Project) normalize() {
	if p.Leads == nil {
		p.Leads = Leads{}
	}
	if p.Weeks == nil {
		p.Weeks = map[string]WeeklyStats{}
	}
}

// DecodeDocument parses a stored document and checks its invariants.
func DecodeDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, err
	}
	if err := d.Validate(); err != nil {
		return Document{}, err
	}
	return d, nil
}
