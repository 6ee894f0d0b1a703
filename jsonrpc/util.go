package jsonrpc

import (
	"encoding/json"
	"io"

	log "pwmfan/log"
)

// Response wraps every reply of the server.
type Response struct {
	Command string      `json:"command"`
	OK      bool        `json:"ok"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func PrepareJSONResponse(v interface{}) ([]byte, error) {
	jsonResponse, err := json.Marshal(v)
	if err != nil {
		log.Errorf("err %v", err)
		return nil, err
	}
	n := len(jsonResponse)
	if n > 0 {
		if jsonResponse[n-1] != '\n' {
			jsonResponse = append(jsonResponse, '\n')
		}
	}
	return jsonResponse, nil
}

// WriteResult sends a successful response line.
func WriteResult(w io.Writer, command string, result interface{}) error {
	buf, err := PrepareJSONResponse(Response{Command: command, OK: true, Result: result})
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// WriteError sends a failed response line.
func WriteError(w io.Writer, command string, cause error) error {
	buf, err := PrepareJSONResponse(Response{Command: command, Error: cause.Error()})
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
