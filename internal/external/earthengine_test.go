package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sitescore/internal/types"

	"golang.org/x/oauth2"
)

type eeCapture struct {
	path   string
	auth   string
	body   map[string]any
	rawReq string
}

func newEETestClient(t *testing.T, reply string) (*EarthEngineClient, *eeCapture) {
	t.Helper()
	capture := &eeCapture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capture.path = r.URL.Path
		capture.auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		capture.rawReq = string(raw)
		_ = json.Unmarshal(raw, &capture.body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123", TokenType: "Bearer"})
	client := NewEarthEngineClientWithTokens(
		newTestBase(t, "earth_engine", types.ErrCodeUpstreamImagery, 0),
		tokens,
		EarthEngineConfig{BaseURL: server.URL, Project: "demo-project"},
	)
	return client, capture
}

// rootCall returns the root node of the expression graph.
func rootCall(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	expr := body["expression"].(map[string]any)
	if expr["result"] != "0" {
		t.Fatalf("result = %v, want \"0\"", expr["result"])
	}
	values := expr["values"].(map[string]any)
	return values["0"].(map[string]any)
}

func TestSoilTextureExpression(t *testing.T) {
	client, capture := newEETestClient(t, `{"result": 7}`)

	v, ok, err := client.SoilTexture(context.Background(), types.Coordinate{Lat: 12.5, Lon: 77.5})
	if err != nil {
		t.Fatalf("SoilTexture returned error: %v", err)
	}
	if !ok || v != 7 {
		t.Errorf("SoilTexture = (%v, %v), want (7, true)", v, ok)
	}
	if capture.path != "/v1/projects/demo-project/value:compute" {
		t.Errorf("path = %q", capture.path)
	}
	if capture.auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", capture.auth, "Bearer tok-123")
	}

	root := rootCall(t, capture.body)
	call := root["functionInvocationValue"].(map[string]any)
	if call["functionName"] != "Dictionary.get" {
		t.Errorf("root function = %v, want Dictionary.get", call["functionName"])
	}
	for _, want := range []string{
		`"OpenLandMap/SOL/SOL_TEXTURE-CLASS_USDA-TT_M/v02"`,
		`"GeometryConstructors.Point"`,
		`[77.5,12.5]`,
		`"Image.reduceRegion"`,
		`"Reducer.mean"`,
		`"b0"`,
	} {
		if !strings.Contains(capture.rawReq, want) {
			t.Errorf("expression missing %s", want)
		}
	}
	if strings.Contains(capture.rawReq, "maxPixels") {
		t.Error("point reductions should not set maxPixels")
	}
}

func TestSlopeNullResult(t *testing.T) {
	client, capture := newEETestClient(t, `{"result": null}`)

	_, ok, err := client.Slope(context.Background(), types.Coordinate{Lat: 1, Lon: 2})
	if err != nil {
		t.Fatalf("Slope returned error: %v", err)
	}
	if ok {
		t.Error("null result should report ok=false")
	}
	for _, want := range []string{`"Terrain.slope"`, `"USGS/SRTMGL1_003"`, `"slope"`} {
		if !strings.Contains(capture.rawReq, want) {
			t.Errorf("expression missing %s", want)
		}
	}
}

func TestCoverageExpressionAndResult(t *testing.T) {
	client, capture := newEETestClient(t, `{"result": {"green": 0.25, "barren": 0.15}}`)

	cov, err := client.Coverage(context.Background(), types.Coordinate{Lat: 1, Lon: 2})
	if err != nil {
		t.Fatalf("Coverage returned error: %v", err)
	}
	if cov == nil || cov.Green != 0.25 || cov.Barren != 0.15 {
		t.Fatalf("Coverage = %+v, want {0.25 0.15}", cov)
	}

	root := rootCall(t, capture.body)
	if _, ok := root["dictionaryValue"]; !ok {
		t.Errorf("root should be a dictionary, got %v", root)
	}
	for _, want := range []string{
		`"COPERNICUS/S2_SR_HARMONIZED"`,
		`"Geometry.buffer"`,
		`"distance":{"constantValue":5000}`,
		`"2020-01-01"`,
		`"2023-12-31"`,
		`"CLOUDY_PIXEL_PERCENTAGE"`,
		`"Reducer.median"`,
		`"B8_median"`,
		`"Image.gt"`,
		`"Image.lt"`,
		`"maxPixels":{"constantValue":1000000000}`,
	} {
		if !strings.Contains(capture.rawReq, want) {
			t.Errorf("expression missing %s", want)
		}
	}
}

func TestCoverageNoData(t *testing.T) {
	client, _ := newEETestClient(t, `{"result": {"green": null, "barren": 0.3}}`)

	cov, err := client.Coverage(context.Background(), types.Coordinate{Lat: 1, Lon: 2})
	if err != nil {
		t.Fatalf("Coverage returned error: %v", err)
	}
	if cov != nil {
		t.Errorf("Coverage = %+v, want nil", cov)
	}
}

func TestEarthEngineErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"project not registered"}}`))
	}))
	defer server.Close()

	client := NewEarthEngineClientWithTokens(
		newTestBase(t, "earth_engine", types.ErrCodeUpstreamImagery, 0),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}),
		EarthEngineConfig{BaseURL: server.URL, Project: "p"},
	)
	_, _, err := client.SoilTexture(context.Background(), types.Coordinate{})
	appErr, ok := err.(*types.AppError)
	if !ok || appErr.Code != types.ErrCodeUpstreamImagery {
		t.Fatalf("err = %v, want %s", err, types.ErrCodeUpstreamImagery)
	}
	if !strings.Contains(appErr.Error(), "project not registered") {
		t.Errorf("error should carry the upstream message, got %q", appErr.Error())
	}
}
