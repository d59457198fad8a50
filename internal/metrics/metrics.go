package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Причины отказа аллокатора
const (
	ReasonCapacity     = "capacity_exceeded"
	ReasonUntracked    = "untracked_date"
	ReasonTourNotFound = "tour_not_found"
	ReasonInactive     = "tour_inactive"
	ReasonInvalid      = "invalid_request"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	BookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Bookings created, by whether the departure had a seat counter",
	}, []string{"tracked"})

	AllocationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_allocation_failures_total",
		Help: "Rejected booking attempts by reason",
	}, []string{"reason"})

	SeatsAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_seats_allocated_total",
		Help: "Seats taken from availability counters",
	})

	SeatsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_seats_released_total",
		Help: "Seats returned to availability counters by cancellation or deletion",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_cache_lookups_total",
		Help: "Tour cache lookups by result",
	}, []string{"result"})
)

// Middleware считает запросы и их длительность по шаблону маршрута
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func BookingCreated(tracked bool, seats int) {
	BookingsCreated.WithLabelValues(strconv.FormatBool(tracked)).Inc()
	if seats > 0 {
		SeatsAllocated.Add(float64(seats))
	}
}

func AllocationFailed(reason string) {
	AllocationFailures.WithLabelValues(reason).Inc()
}

func SeatsReturned(seats int) {
	if seats > 0 {
		SeatsReleased.Add(float64(seats))
	}
}

func CacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
	} else {
		CacheLookups.WithLabelValues("miss").Inc()
	}
}
