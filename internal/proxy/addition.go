package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sumctl/internal/digit"
	"sumctl/pkg/logging"

	"k8s.io/apimachinery/pkg/util/wait"
)

// operand accepts a JSON number or a numeric string.
type operand int

func (o *operand) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*o = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%q is not an integer", s)
	}
	*o = operand(n)
	return nil
}

type additionRequest struct {
	NumberA operand `json:"NumberA"`
	NumberB operand `json:"NumberB"`
}

// Detail reports how one digit position was computed.
type Detail struct {
	Posicion       int    `json:"Posicion"`
	NombrePosicion string `json:"NombrePosicion"`
	A              int    `json:"A"`
	B              int    `json:"B"`
	CarryIn        int    `json:"CarryIn"`
	Result         int    `json:"Result"`
	CarryOut       int    `json:"CarryOut"`
	Pod            string `json:"Pod"`
	Port           int    `json:"Port"`
}

// ScalingEvent records what the proxy asked of the fleet while serving an addition.
type ScalingEvent struct {
	Pod      string `json:"Pod"`
	Action   string `json:"Accion"`
	Replicas int    `json:"Replicas"`
	Port     int    `json:"Port,omitempty"`
}

const (
	actionScaledUp           = "scale-up"
	actionScaleDownScheduled = "scale-down-scheduled"
)

// AdditionResponse is the body of a successful POST /suma-n-digitos.
type AdditionResponse struct {
	Result             int            `json:"Result"`
	CarryOut           int            `json:"CarryOut"`
	NumDigitos         int            `json:"NumDigitos"`
	ContenedoresUsados int            `json:"ContenedoresUsados"`
	Details            []Detail       `json:"Details"`
	EventosEscalado    []ScalingEvent `json:"EventosEscalado"`
}

var positionNames = []string{"Unidades", "Decenas", "Centenas", "Millares"}

// PositionName names a digit position, e.g. 1 is "Decenas".
func PositionName(pos int) string {
	if pos >= 0 && pos < len(positionNames) {
		return positionNames[pos]
	}
	return fmt.Sprintf("Posicion-%d", pos)
}

// SplitDigits returns the decimal digits of n, least significant first. 0 yields [0].
func SplitDigits(n int) []int {
	if n == 0 {
		return []int{0}
	}
	var digits []int
	for n > 0 {
		digits = append(digits, n%10)
		n /= 10
	}
	return digits
}

// PadDigits extends the shorter of a and b with high-order zeros.
func PadDigits(a, b []int) ([]int, []int) {
	for len(a) < len(b) {
		a = append(a, 0)
	}
	for len(b) < len(a) {
		b = append(b, 0)
	}
	return a, b
}

// MaxOperand is the largest number that fits in units digit positions.
func MaxOperand(units int) int {
	m := 1
	for range units {
		m *= 10
	}
	return m - 1
}

func (p *Proxy) handleSum(w http.ResponseWriter, r *http.Request) {
	var req additionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.Warn(subsystem, "Rejected request: %v", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	a, b := int(req.NumberA), int(req.NumberB)
	limit := MaxOperand(p.fleet.MaxUnits())
	if a < 0 || a > limit || b < 0 || b > limit {
		err := fmt.Errorf("numbers must be between 0 and %d", limit)
		logging.Warn(subsystem, "Rejected %d + %d: %v", a, b, err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	resp, err := p.add(r.Context(), a, b)
	if err != nil {
		logging.Error(subsystem, err, "Addition %d + %d failed", a, b)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// add brings up one unit per digit position and chains the carry through them.
func (p *Proxy) add(ctx context.Context, a, b int) (*AdditionResponse, error) {
	digitsA, digitsB := PadDigits(SplitDigits(a), SplitDigits(b))
	n := len(digitsA)
	names := p.fleet.Names()
	logging.Info(subsystem, "New addition %d + %d: %d digit(s), %d unit(s)", a, b, n, n)

	lease, err := p.fleet.BringUpUnits(ctx, n)
	if !p.cfg.KeepWarm {
		defer p.fleet.ScaleDownAsync(lease, p.scaleDownDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("could not bring up %d unit(s): %w", n, err)
	}

	resp := &AdditionResponse{NumDigitos: n, ContenedoresUsados: n}
	carry := 0
	sum := 0
	place := 1
	for i := range n {
		ep := p.fleet.Resolve(i)
		pod := names.Deployment(i)
		resp.EventosEscalado = append(resp.EventosEscalado, ScalingEvent{Pod: pod, Action: actionScaledUp, Replicas: 1, Port: ep.Port})

		in := digit.Request{NumberA: digitsA[i], NumberB: digitsB[i], CarryIn: carry}
		out, err := p.callDigit(ctx, ep.URL, i, in)
		if err != nil {
			return nil, err
		}
		logging.Info(subsystem, "%s: %d + %d + carry %d = %d, carry %d",
			PositionName(i), in.NumberA, in.NumberB, in.CarryIn, out.Result, out.CarryOut)

		resp.Details = append(resp.Details, Detail{
			Posicion:       i,
			NombrePosicion: PositionName(i),
			A:              in.NumberA,
			B:              in.NumberB,
			CarryIn:        in.CarryIn,
			Result:         out.Result,
			CarryOut:       out.CarryOut,
			Pod:            pod,
			Port:           ep.Port,
		})
		sum += out.Result * place
		place *= 10
		carry = out.CarryOut
	}

	resp.Result = carry*place + sum
	resp.CarryOut = carry
	if !p.cfg.KeepWarm {
		for i := range n {
			resp.EventosEscalado = append(resp.EventosEscalado, ScalingEvent{Pod: names.Deployment(i), Action: actionScaleDownScheduled})
		}
	}
	logging.Success(subsystem, "Result: %d + %d = %d", a, b, resp.Result)
	return resp, nil
}

// callDigit calls a unit with exponential backoff. Rejections that retrying cannot fix
// (4xx) end the attempts early.
func (p *Proxy) callDigit(ctx context.Context, url string, pos int, req digit.Request) (digit.Response, error) {
	attempts := max(p.cfg.DigitAttempts, 1)
	backoff := wait.Backoff{
		Duration: p.cfg.RetryBackoff,
		Factor:   2,
		Steps:    attempts,
	}

	var (
		resp    digit.Response
		lastErr error
		tried   int
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		tried++
		callCtx := ctx
		if p.cfg.DigitTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.DigitTimeout)
			defer cancel()
		}
		out, err := p.digits.Add(callCtx, url, req)
		if err == nil {
			resp = out
			return true, nil
		}
		lastErr = err
		var se *digit.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return false, err
		}
		if tried < attempts {
			logging.Warn(subsystem, "%s: attempt %d/%d against %s failed, retrying: %v", PositionName(pos), tried, attempts, url, err)
		}
		return false, nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return digit.Response{}, fmt.Errorf("failed talking to %s for %s after %d attempt(s): %w", url, PositionName(pos), tried, lastErr)
	}
	return resp, nil
}
