// Package webhooks delivers fire-and-forget notifications about task
// mutations to externally configured URLs.
package webhooks

import (
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// Notifier posts JSON payloads to the configured webhook URLs. Empty
// URLs disable the corresponding notification. Delivery is
// asynchronous; failures are logged and never surface to callers.
type Notifier struct {
	client          *resty.Client
	logger          *zap.SugaredLogger
	taskMutationURL string
	statusChangeURL string
}

// NewNotifier builds a Notifier with a shared resty client.
func NewNotifier(taskMutationURL, statusChangeURL string, logger *zap.SugaredLogger) *Notifier {
	client := resty.New()
	client.SetTimeout(requestTimeout)

	return &Notifier{
		client:          client,
		logger:          logger,
		taskMutationURL: taskMutationURL,
		statusChangeURL: statusChangeURL,
	}
}

// TaskMutation reports a create/update/delete of a task.
func (n *Notifier) TaskMutation(action string, task map[string]any) {
	n.post(n.taskMutationURL, map[string]any{"action": action, "task": task})
}

// StatusChange reports a status transition.
func (n *Notifier) StatusChange(taskID int64, status string) {
	n.post(n.statusChangeURL, map[string]any{"id": taskID, "status": status})
}

func (n *Notifier) post(url string, payload map[string]any) {
	if url == "" {
		return
	}
	go func() {
		resp, err := n.client.R().SetBody(payload).Post(url)
		if err != nil {
			n.logger.Warnf("webhook delivery to %s failed: %v", url, err)
			return
		}
		if resp.IsError() {
			n.logger.Warnf("webhook %s returned %d", url, resp.StatusCode())
		}
	}()
}
