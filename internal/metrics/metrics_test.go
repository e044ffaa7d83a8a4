package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReceivedForIncrementsPerTopicCounter(t *testing.T) {
	r := New()
	r.ReceivedFor("sensors/a")
	r.ReceivedFor("sensors/a")
	r.ReceivedFor("sensors/b")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `forwarding_mqtt_received{topic="sensors/a"} 2`) {
		t.Errorf("expected count 2 for sensors/a, body=%s", body)
	}
	if !strings.Contains(body, `forwarding_mqtt_received{topic="sensors/b"} 1`) {
		t.Errorf("expected count 1 for sensors/b, body=%s", body)
	}
}

func TestPublishedForLabelsByKafkaTopic(t *testing.T) {
	r := New()
	r.PublishedFor("K1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `forwarding_kafka_published{topic="K1"} 1`) {
		t.Errorf("expected count 1 for K1, body=%s", body)
	}
}

func TestSetConnectedReflectsBooleanAsZeroOrOne(t *testing.T) {
	r := New()

	r.SetConnected(true)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "forwarding_mqtt_connected 1") {
		t.Errorf("expected gauge at 1, body=%s", rec.Body.String())
	}

	r.SetConnected(false)
	rec = httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "forwarding_mqtt_connected 0") {
		t.Errorf("expected gauge at 0, body=%s", rec.Body.String())
	}
}
