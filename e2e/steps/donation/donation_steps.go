package donation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cucumber/godog"
)

// Response mirrors the captured exchange so this package stays independent
// of the root context type.
type Response struct {
	Status int
	Body   []byte
}

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	PersonaID(name string) (string, error)
	Send(ctx context.Context, method, path string, body any) error
	SendAs(ctx context.Context, persona, method, path string, body any) (Response, error)
	Field(path string) (any, error)
	LastStatus() int
	Save(key, value string)
	Saved(key string) (string, error)
}

const requestKey = "donation_request_id"

// RegisterSteps registers donation request lifecycle steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &donationSteps{tc: tc}

	ctx.Step(`^I create an? "([^"]*)" donation request for (\d+) days from now$`, steps.createRequest)
	ctx.Step(`^I view the donation request$`, steps.viewRequest)
	ctx.Step(`^I view donation request "([^"]*)"$`, steps.viewRequestByID)
	ctx.Step(`^I accept the donation request$`, steps.acceptRequest)
	ctx.Step(`^I change the donation request status to "([^"]*)"$`, steps.changeStatus)
	ctx.Step(`^I assign "([^"]*)" to the donation request$`, steps.assignDonor)
	ctx.Step(`^I cancel the donation request because "([^"]*)"$`, steps.cancelRequest)
	ctx.Step(`^I delete the donation request because "([^"]*)"$`, steps.deleteRequest)
	ctx.Step(`^I suggest "([^"]*)" for the donation request$`, steps.suggestDonor)
	ctx.Step(`^"([^"]*)" and "([^"]*)" accept the donation request at the same time$`, steps.acceptConcurrently)

	ctx.Step(`^exactly one acceptance should succeed$`, steps.exactlyOneAcceptance)
	ctx.Step(`^the losing acceptance should fail with status (\d+)$`, steps.loserStatus)
	ctx.Step(`^the status history should end with "([^"]*)"$`, steps.historyEndsWith)
	ctx.Step(`^the donation request should have (\d+) suggestions?$`, steps.suggestionCount)
}

type donationSteps struct {
	tc TestContext

	mu      sync.Mutex
	results []Response
}

func (s *donationSteps) path(suffix string) (string, error) {
	reqID, err := s.tc.Saved(requestKey)
	if err != nil {
		return "", err
	}
	return "/donation-requests/" + reqID + suffix, nil
}

func (s *donationSteps) createRequest(ctx context.Context, bloodGroup string, days int) error {
	body := map[string]any{
		"recipient": map[string]string{
			"name":             "Ayesha Begum",
			"district":         "Dhaka",
			"sub_district":     "Mirpur",
			"hospital_name":    "Dhaka Medical College Hospital",
			"hospital_address": "Bakshibazar, Dhaka",
		},
		"blood_group":    bloodGroup,
		"donation_date":  time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02"),
		"donation_time":  "10:30",
		"message":        "Surgery scheduled, please help",
		"urgency":        "high",
		"units_required": 1,
	}
	if err := s.tc.Send(ctx, http.MethodPost, "/donation-requests", body); err != nil {
		return err
	}
	if status := s.tc.LastStatus(); status != http.StatusCreated {
		return fmt.Errorf("create donation request: expected 201, got %d", status)
	}
	reqID, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	s.tc.Save(requestKey, fmt.Sprint(reqID))
	return nil
}

func (s *donationSteps) viewRequest(ctx context.Context) error {
	p, err := s.path("")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodGet, p, nil)
}

func (s *donationSteps) viewRequestByID(ctx context.Context, reqID string) error {
	return s.tc.Send(ctx, http.MethodGet, "/donation-requests/"+reqID, nil)
}

func (s *donationSteps) acceptRequest(ctx context.Context) error {
	p, err := s.path("/accept")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodPost, p, nil)
}

func (s *donationSteps) changeStatus(ctx context.Context, status string) error {
	p, err := s.path("/status")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodPost, p, map[string]any{"status": status})
}

func (s *donationSteps) assignDonor(ctx context.Context, donor string) error {
	donorID, err := s.tc.PersonaID(donor)
	if err != nil {
		return err
	}
	p, err := s.path("/status")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodPost, p, map[string]any{"status": "inprogress", "donor_id": donorID})
}

func (s *donationSteps) cancelRequest(ctx context.Context, reason string) error {
	p, err := s.path("/cancel")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodPost, p, map[string]any{"reason": reason})
}

func (s *donationSteps) deleteRequest(ctx context.Context, reason string) error {
	p, err := s.path("")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodDelete, p, map[string]any{"reason": reason})
}

func (s *donationSteps) suggestDonor(ctx context.Context, donor string) error {
	donorID, err := s.tc.PersonaID(donor)
	if err != nil {
		return err
	}
	p, err := s.path("/suggestions")
	if err != nil {
		return err
	}
	return s.tc.Send(ctx, http.MethodPost, p, map[string]any{"donor_id": donorID, "note": "lives nearby"})
}

func (s *donationSteps) acceptConcurrently(ctx context.Context, first, second string) error {
	p, err := s.path("/accept")
	if err != nil {
		return err
	}
	s.results = nil

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)
	for _, persona := range []string{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.tc.SendAs(ctx, persona, http.MethodPost, p, nil)
			if err != nil {
				errs <- err
				return
			}
			s.mu.Lock()
			s.results = append(s.results, resp)
			s.mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func (s *donationSteps) exactlyOneAcceptance(context.Context) error {
	statuses := s.statuses()
	if len(statuses) != 2 || statuses[0] != http.StatusOK || statuses[1] == http.StatusOK {
		return fmt.Errorf("expected one 200 and one failure, got %v", statuses)
	}
	return nil
}

func (s *donationSteps) loserStatus(_ context.Context, want int) error {
	statuses := s.statuses()
	if len(statuses) != 2 || statuses[1] != want {
		return fmt.Errorf("expected losing status %d, got %v", want, statuses)
	}
	return nil
}

// statuses returns the concurrent results with the 200 first.
func (s *donationSteps) statuses() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r.Status)
	}
	sort.Ints(out)
	return out
}

func (s *donationSteps) historyEndsWith(_ context.Context, status string) error {
	raw, err := s.tc.Field("status_history")
	if err != nil {
		return err
	}
	history, ok := raw.([]any)
	if !ok || len(history) == 0 {
		return fmt.Errorf("status_history is empty")
	}
	last, _ := history[len(history)-1].(map[string]any)
	if got := fmt.Sprint(last["status"]); got != status {
		b, _ := json.Marshal(history)
		return fmt.Errorf("expected history to end with %q, got %s", status, b)
	}
	return nil
}

func (s *donationSteps) suggestionCount(_ context.Context, want int) error {
	raw, err := s.tc.Field("suggestions")
	if err != nil {
		return err
	}
	list, _ := raw.([]any)
	if len(list) != want {
		return fmt.Errorf("expected %d suggestions, got %d", want, len(list))
	}
	return nil
}
