// Package task reads and writes task documents.
//
// Each task lives in its own directory under the tasks directory
// (.pipewright/tasks by default) and is described by a task.json file
// created by the planning step. The orchestrator mutates status, phase and
// worktree fields; every other field, including ones this package does not
// know about, survives a read-modify-write cycle untouched.
//
// Reads never fail: a missing, unparseable or invalid document is reported as
// absent. Writes go through a temp file and a rename.
package task
