package importer

import "time"

// Definition is the on-disk form of a schedule: YAML or JSON, one
// document per schedule. Refs are local labels used only to wire
// hierarchy and dependencies inside the file; database ids are issued at
// persist time.
type Definition struct {
	Schedule     ScheduleDef    `yaml:"schedule"`
	Tasks        []TaskDef      `yaml:"tasks"`
	Dependencies []DependencyDef `yaml:"dependencies"`
	Milestones   []MilestoneDef `yaml:"milestones"`
}

type ScheduleDef struct {
	Name    string `yaml:"name"`
	Project string `yaml:"project"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

type TaskDef struct {
	Ref      string  `yaml:"ref"`
	Name     string  `yaml:"name"`
	Parent   string  `yaml:"parent"`
	WBS      string  `yaml:"wbs"`
	Start    string  `yaml:"start"`
	End      string  `yaml:"end"`
	Duration int     `yaml:"duration"`
	Effort   float64 `yaml:"effort"`
	Progress int     `yaml:"progress"`
}

type DependencyDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Type string `yaml:"type"`
	Lag  int    `yaml:"lag"`
}

type MilestoneDef struct {
	Name        string `yaml:"name"`
	Target      string `yaml:"target"`
	Task        string `yaml:"task"`
	Responsible string `yaml:"responsible"`
}

// Phase names one stage of an import job.
type Phase string

const (
	PhaseParse     Phase = "parse"
	PhaseValidate  Phase = "validate"
	PhasePersist   Phase = "persist"
	PhaseRecompute Phase = "recompute"
	PhaseDone      Phase = "done"
)

// Progress is a point-in-time report emitted while an import runs. Total
// is zero for phases without a meaningful item count.
type Progress struct {
	Phase Phase
	Done  int
	Total int
}

// Result summarizes a completed import.
type Result struct {
	ScheduleID   string
	Tasks        int
	Dependencies int
	Milestones   int
	Took         time.Duration
}
