package bot

import (
	"time"
)

// Discord clears the typing indicator after ~10 seconds
const typingRefreshInterval = 8 * time.Second

// startTyping shows the typing indicator until the returned stop func is called.
func (h *Handler) startTyping(s Session, channelID string) func() {
	s.ChannelTyping(channelID)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-h.ctx.Done():
				return
			case <-ticker.C:
				s.ChannelTyping(channelID)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
