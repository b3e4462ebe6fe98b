package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/willemschots/mailverify/internal/errorz"
)

// maxBodySize limits the size of request bodies.
const maxBodySize = 64 << 10

var errMissing = errors.New("missing value")

// decodeRequest decodes a JSON body, or the form values for other content types.
func decodeRequest[IN any](s *Server, r *http.Request) (IN, error) {
	var in IN

	if isJSON(r) {
		err := decodeJSON(r, &in)
		return in, err
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
	err := r.ParseForm()
	if err != nil {
		return in, errorz.InvalidInput{fmt.Errorf("failed to parse form: %w", err)}
	}

	err = s.decoder.Decode(&in, r.Form)
	return in, decodeError(err)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	err := dec.Decode(dst)
	if err != nil {
		return errorz.InvalidInput{fmt.Errorf("failed to decode json: %w", err)}
	}
	return nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeError maps schema decoding errors to errorz.InvalidInput.
func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}
