package digit

import (
	"encoding/json"
	"fmt"
	"net/http"

	"sumctl/pkg/logging"
)

const subsystem = "Digit"

// Request is the body of POST /suma.
type Request struct {
	NumberA int `json:"NumberA"`
	NumberB int `json:"NumberB"`
	CarryIn int `json:"CarryIn"`
}

// Response carries the units digit of the sum and the carry into the next position.
type Response struct {
	Result   int `json:"Result"`
	CarryOut int `json:"CarryOut"`
}

// Validate checks that both operands are single digits and the carry is 0 or 1.
func (r Request) Validate() error {
	if r.NumberA < 0 || r.NumberA > 9 {
		return fmt.Errorf("NumberA must be between 0 and 9, got %d", r.NumberA)
	}
	if r.NumberB < 0 || r.NumberB > 9 {
		return fmt.Errorf("NumberB must be between 0 and 9, got %d", r.NumberB)
	}
	if r.CarryIn < 0 || r.CarryIn > 1 {
		return fmt.Errorf("CarryIn must be 0 or 1, got %d", r.CarryIn)
	}
	return nil
}

// Add adds one digit position.
func Add(r Request) (Response, error) {
	if err := r.Validate(); err != nil {
		return Response{}, err
	}
	sum := r.NumberA + r.NumberB + r.CarryIn
	return Response{Result: sum % 10, CarryOut: sum / 10}, nil
}

// errorBody matches the shape the browser UI reads on failure.
type errorBody struct {
	Detail string `json:"detail"`
}

// NewHandler returns the HTTP surface of a unit: POST /suma and GET /health.
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /suma", handleSum)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func handleSum(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body: " + err.Error()})
		return
	}
	resp, err := Add(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}
	logging.Debug(subsystem, "%d + %d + %d = %d carry %d", req.NumberA, req.NumberB, req.CarryIn, resp.Result, resp.CarryOut)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
