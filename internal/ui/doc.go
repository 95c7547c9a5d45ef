// Package ui implements the `jobs tui` queue browser using bubbletea's Elm architecture.
//
// The browser has three views:
//  1. [JobListView] : jobs newest first with per-status counts, filterable by status
//  2. [JobDetailView] : the full job including its profile snapshot and error message
//  3. [ConfirmView] : confirm returning an errored or stuck job to the queue
//
// The [Model] refreshes on a timer so jobs move between statuses while a mirror is running.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, tab, r, y/n, q) plus ctrl+r to refresh, with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
