package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/nostodon/internal/jobqueue"
	"github.com/desertthunder/nostodon/internal/models"
)

const (
	refreshInterval = 2 * time.Second
	pageSize        = 200
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	JobDetailView
	ConfirmView
)

// JobStore is the slice of the job queue the browser needs.
type JobStore interface {
	List(ctx context.Context, opts jobqueue.ListOptions) ([]models.ScheduledPost, error)
	Stats(ctx context.Context) (models.JobStats, error)
	Requeue(ctx context.Context, externalPostID string) (models.ChangeResult, error)
}

// filters is the tab order of status filters; the empty status shows every job.
var filters = []models.JobStatus{"", models.JobNew, models.JobRunning, models.JobFinished, models.JobErrored}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	store    JobStore
	view     ViewState
	back     ViewState
	filter   int
	list     list.Model
	jobs     []models.ScheduledPost
	stats    models.JobStats
	selected *models.ScheduledPost
	notice   string
	err      error
	width    int
	height   int
	help     help.Model
	keys     keyMap
}

// NewModel creates a job browser over store.
func NewModel(ctx context.Context, store JobStore) *Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Jobs"
	l.SetShowHelp(false)

	return &Model{
		ctx:   ctx,
		store: store,
		view:  JobListView,
		list:  l,
		help:  help.New(),
		keys:  newKeyMap(),
	}
}

// Init loads the first page and starts the refresh timer.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchJobs(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleListKeys(msg)
		case JobDetailView:
			return m.handleDetailKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgJobsFetched:
			return m, m.applyJobs(msg.data.(jobsFetched))
		case MsgRequeued:
			r := msg.data.(requeued)
			switch {
			case r.err != nil:
				m.notice = styles.err.Render(fmt.Sprintf("requeue %s failed: %v", r.externalPostID, r.err))
			case r.result.Changed():
				m.notice = styles.ok.Render(fmt.Sprintf("requeued %s", r.externalPostID))
			default:
				m.notice = styles.warn.Render(fmt.Sprintf("%s is no longer errored or running", r.externalPostID))
			}
			return m, m.fetchJobs()
		case MsgTick:
			return m, tea.Batch(m.fetchJobs(), m.tick())
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) applyJobs(f jobsFetched) tea.Cmd {
	if f.err != nil {
		m.err = f.err
		return nil
	}
	m.err = nil
	m.jobs = f.jobs
	m.stats = f.stats

	if m.selected != nil {
		for i := range f.jobs {
			if f.jobs[i].ExternalPostID == m.selected.ExternalPostID {
				job := f.jobs[i]
				m.selected = &job
			}
		}
	}

	items := make([]list.Item, len(f.jobs))
	for i, job := range f.jobs {
		items[i] = jobItem{job: job}
	}
	return m.list.SetItems(items)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+r to retry, q to quit", m.err))
	}

	switch m.view {
	case JobListView:
		return m.renderList()
	case JobDetailView:
		return m.renderDetail()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if job, ok := m.current(); ok {
			m.selected = &job
			m.view = JobDetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.filter):
		m.filter = (m.filter + 1) % len(filters)
		m.list.ResetSelected()
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.requeue):
		if job, ok := m.current(); ok {
			m.confirm(job, JobListView)
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchJobs()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = JobListView
		m.selected = nil
	case key.Matches(msg, m.keys.requeue):
		if m.selected != nil {
			m.confirm(*m.selected, JobDetailView)
		}
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		job := *m.selected
		m.view = m.back
		if m.back == JobListView {
			m.selected = nil
		}
		return m, m.requeue(job.ExternalPostID)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = m.back
		if m.back == JobListView {
			m.selected = nil
		}
	}
	return m, nil
}

// confirm opens the requeue prompt for job, or explains why it cannot be requeued.
func (m *Model) confirm(job models.ScheduledPost, from ViewState) {
	if job.Status != models.JobErrored && job.Status != models.JobRunning {
		m.notice = styles.warn.Render("only errored or running jobs can be requeued")
		return
	}
	m.selected = &job
	m.back = from
	m.view = ConfirmView
}

func (m *Model) current() (models.ScheduledPost, bool) {
	item, ok := m.list.SelectedItem().(jobItem)
	if !ok {
		return models.ScheduledPost{}, false
	}
	return item.job, true
}

func (m *Model) fetchJobs() tea.Cmd {
	opts := jobqueue.ListOptions{Status: filters[m.filter], Limit: pageSize}
	return func() tea.Msg {
		jobs, err := m.store.List(m.ctx, opts)
		if err != nil {
			return jobsFetchedMsg(nil, nil, err)
		}
		stats, err := m.store.Stats(m.ctx)
		return jobsFetchedMsg(jobs, stats, err)
	}
}

func (m *Model) requeue(externalPostID string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.store.Requeue(m.ctx, externalPostID)
		return requeuedMsg(externalPostID, result, err)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) filterName() string {
	if filters[m.filter] == "" {
		return "all"
	}
	return string(filters[m.filter])
}

func (m *Model) renderStats() string {
	parts := make([]string, 0, len(filters))
	for _, status := range filters[1:] {
		parts = append(parts, styles.Status(status).Render(fmt.Sprintf("%s %d", status, m.stats[status])))
	}
	return fmt.Sprintf("%s  |  filter: %s", strings.Join(parts, " • "), m.filterName())
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.filter, m.keys.requeue, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	out := fmt.Sprintf("%s\n\n%s", m.renderStats(), m.list.View())
	if m.notice != "" {
		out += "\n" + m.notice
	}
	return fmt.Sprintf("%s\n\n%s", out, helpView)
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return ""
	}
	job := m.selected

	title := styles.title.Render(fmt.Sprintf("Job #%d", job.ID))
	var b strings.Builder
	fmt.Fprintf(&b, "Post:      %s\n", job.ExternalPostID)
	fmt.Fprintf(&b, "Status:    %s\n", styles.Status(job.Status).Render(string(job.Status)))
	fmt.Fprintf(&b, "User:      %s\n", job.UserID)
	fmt.Fprintf(&b, "Handle:    %s\n", job.Profile.NIP05)
	fmt.Fprintf(&b, "Name:      %s (%s)\n", job.Profile.DisplayName, job.Profile.Name)
	if !job.ClaimedAt.IsZero() {
		fmt.Fprintf(&b, "Claimed:   %s\n", job.ClaimedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Updated:   %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", styles.err.Render("Error"), job.ErrorMessage)
	}
	fmt.Fprintf(&b, "\n%s\n%s\n", styles.help.Render("Content"), job.Content)

	helpKeys := []key.Binding{m.keys.requeue, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	if m.selected == nil {
		return ""
	}
	title := styles.title.Render(fmt.Sprintf("Requeue job #%d (%s)?", m.selected.ID, m.selected.ExternalPostID))
	info := fmt.Sprintf("\nStatus: %s\n", m.selected.Status)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}
