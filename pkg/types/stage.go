package types

// Stage identifies one step of the composition pipeline.
type Stage string

const (
	StageResizing   Stage = "resizing"
	StageMarking    Stage = "marking"
	StageDescribing Stage = "describing"
	StageComposing  Stage = "composing"
	StageCropping   Stage = "cropping"
	StageDone       Stage = "done"
)

// Stages lists the working stages in execution order. StageDone is not part of it.
func Stages() []Stage {
	return []Stage{StageResizing, StageMarking, StageDescribing, StageComposing, StageCropping}
}

// Index returns the position of s in Stages, len(Stages()) for StageDone and -1 otherwise.
func (s Stage) Index() int {
	stages := Stages()
	if s == StageDone {
		return len(stages)
	}
	for i, st := range stages {
		if st == s {
			return i
		}
	}
	return -1
}

// StageStatus is the display status of a stage.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in-progress"
	StatusCompleted  StageStatus = "completed"
)
