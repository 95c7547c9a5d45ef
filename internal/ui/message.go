package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/nostodon/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var _ tea.Msg = Msg{}

const (
	MsgJobsFetched MsgKind = iota
	MsgRequeued
	MsgTick
)

type jobsFetched struct {
	jobs  []models.ScheduledPost
	stats models.JobStats
	err   error
}

type requeued struct {
	externalPostID string
	result         models.ChangeResult
	err            error
}

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []models.ScheduledPost, stats models.JobStats, err error) Msg {
	return Msg{kind: MsgJobsFetched, data: jobsFetched{jobs, stats, err}}
}

// requeuedMsg is the constructor for [MsgRequeued]
func requeuedMsg(externalPostID string, result models.ChangeResult, err error) Msg {
	return Msg{kind: MsgRequeued, data: requeued{externalPostID, result, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg() Msg {
	return Msg{kind: MsgTick}
}
