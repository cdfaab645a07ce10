package controller

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"mailfinder/models"
	"mailfinder/utils"
)

// HandleRunProgressWS streams progress for one run. The client sends
// {"run_id": N} and receives updates until the run completes or fails.
func (fc *FinderController) HandleRunProgressWS(c *websocket.Conn) {
	defer c.Close()

	clientID, _ := c.Locals("clientID").(string)

	var input struct {
		RunID uint `json:"run_id"`
	}
	if err := c.ReadJSON(&input); err != nil {
		fc.Logger.Printf("Error reading JSON: %v", err)
		return
	}

	if !fc.ownsRun(clientID, input.RunID) {
		_ = c.WriteJSON(map[string]string{"status": "error", "error": "run not found"})
		return
	}

	updates, release := fc.Runner.Progress.Subscribe(input.RunID)
	defer release()

	if latest, ok := fc.Runner.Progress.Latest(input.RunID); ok {
		if err := c.WriteJSON(latest); err != nil || latest.Finished() {
			return
		}
	} else if run, ok := fc.loadRun(input.RunID); ok && (run.Status == models.RunCompleted || run.Status == models.RunFailed) {
		_ = c.WriteJSON(progressFromRun(run))
		return
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case p := <-updates:
			if err := c.WriteJSON(p); err != nil {
				fc.Logger.Printf("Error writing JSON: %v", err)
				return
			}
			if p.Finished() {
				return
			}
		case <-keepalive.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (fc *FinderController) ownsRun(clientID string, runID uint) bool {
	if runID == 0 {
		return false
	}
	if fc.DB == nil {
		_, ok := fc.Runner.Progress.Latest(runID)
		return ok
	}
	var count int64
	fc.DB.Model(&models.FinderRun{}).Where("id = ? AND client_id = ?", runID, clientID).Count(&count)
	return count > 0
}

func (fc *FinderController) loadRun(runID uint) (models.FinderRun, bool) {
	var run models.FinderRun
	if fc.DB == nil {
		return run, false
	}
	if err := fc.DB.First(&run, runID).Error; err != nil {
		return run, false
	}
	return run, true
}

func progressFromRun(run models.FinderRun) utils.RunProgress {
	p := utils.RunProgress{RunID: run.ID, Status: run.Status, Total: run.Total}
	p.Stats.Processed = run.Processed
	p.Stats.Verified = run.Verified
	p.Stats.Rejected = run.Rejected
	p.Stats.CatchAll = run.CatchAll
	p.Stats.NoMX = run.NoMX
	p.Stats.Crawled = run.Crawled
	p.Stats.Skipped = run.Skipped
	p.Stats.Errors = run.Errors
	p.Stats.Domains = run.Domains
	return p
}
