package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/stephnangue/sessionpipe/helper"
)

const (
	ErrOutputStringRequest = "output a string, please"
)

// OutputStringError is returned instead of performing a request when
// OutputCurlString is set. The bearer token is masked in the curl string.
type OutputStringError struct {
	*retryablehttp.Request
	TLSSkipVerify              bool
	ClientCACert, ClientCAPath string
	ClientCert, ClientKey      string
	finalCurlString            string
}

func (d *OutputStringError) Error() string {
	if d.finalCurlString == "" {
		cs, err := d.buildCurlString()
		if err != nil {
			return err.Error()
		}
		d.finalCurlString = cs
	}

	return ErrOutputStringRequest
}

func (d *OutputStringError) CurlString() (string, error) {
	if d.finalCurlString == "" {
		cs, err := d.buildCurlString()
		if err != nil {
			return "", err
		}
		d.finalCurlString = cs
	}
	return d.finalCurlString, nil
}

func (d *OutputStringError) buildCurlString() (string, error) {
	body, err := d.BodyBytes()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("curl ")

	if d.TLSSkipVerify {
		b.WriteString("--insecure ")
	}
	if d.Method != http.MethodGet {
		b.WriteString("-X ")
		b.WriteString(d.Method)
		b.WriteByte(' ')
	}
	if d.ClientCACert != "" {
		b.WriteString("--cacert '")
		b.WriteString(strings.ReplaceAll(d.ClientCACert, "'", "'\"'\"'"))
		b.WriteString("' ")
	}
	if d.ClientCAPath != "" {
		b.WriteString("--capath '")
		b.WriteString(strings.ReplaceAll(d.ClientCAPath, "'", "'\"'\"'"))
		b.WriteString("' ")
	}
	if d.ClientCert != "" {
		b.WriteString("--cert '")
		b.WriteString(strings.ReplaceAll(d.ClientCert, "'", "'\"'\"'"))
		b.WriteString("' ")
	}
	if d.ClientKey != "" {
		b.WriteString("--key '")
		b.WriteString(strings.ReplaceAll(d.ClientKey, "'", "'\"'\"'"))
		b.WriteString("' ")
	}
	keys := make([]string, 0, len(d.Header))
	for k := range d.Header {
		if k == HeaderRequestID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range d.Header[k] {
			if k == "Authorization" {
				v = maskBearer(v)
			}
			b.WriteString("-H '")
			b.WriteString(strings.ReplaceAll(k+": "+v, "'", "'\"'\"'"))
			b.WriteString("' ")
		}
	}
	if len(body) > 0 {
		b.WriteString("-d '")
		b.WriteString(strings.ReplaceAll(string(body), "'", "'\"'\"'"))
		b.WriteString("' ")
	}
	b.WriteString(strconv.Quote(d.URL.String()))

	return b.String(), nil
}

func maskBearer(v string) string {
	token, ok := strings.CutPrefix(v, "Bearer ")
	if !ok {
		return helper.MaskToken(v)
	}
	return "Bearer " + helper.MaskToken(token)
}
