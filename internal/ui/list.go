package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/nostodon/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.ScheduledPost] to implement [list.Item].
type jobItem struct {
	job models.ScheduledPost
}

func (i jobItem) FilterValue() string { return i.job.ExternalPostID + " " + i.job.Profile.NIP05 }
func (i jobItem) Title() string {
	return fmt.Sprintf("#%d %s %s", i.job.ID, styles.Status(i.job.Status).Render(string(i.job.Status)), i.job.ExternalPostID)
}
func (i jobItem) Description() string {
	desc := i.job.Profile.NIP05
	if i.job.ErrorMessage != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.job.ErrorMessage)
	}
	return desc
}
