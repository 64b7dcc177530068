package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"matchable.io/sdk/v1/action"
	"matchable.io/sdk/v1/logger"
	"matchable.io/sdk/v1/response"
	"matchable.io/sdk/v1/services/sysinfoservice"
	"matchable.io/sdk/v1/settings"
)

var _ = Describe("Matchable client", func() {
	var sut *Client
	var fake *fakeMatchable
	var mockSysInfo *sysinfoservice.MockSystemInfoService
	var current settings.Settings
	var err error

	ctx := context.Background()
	now := time.Date(2022, 5, 4, 10, 30, 0, 0, time.UTC)

	buildClient := func() {
		if sut != nil {
			sut.Close()
		}
		sut, err = New(logger.MockLogger(), settings.Static(current),
			WithSystemInfo(mockSysInfo),
			WithClock(func() time.Time { return now }),
		)
		Expect(err).ShouldNot(HaveOccurred())
	}

	decodeBody := func(req recordedRequest) []map[string]interface{} {
		var body []map[string]interface{}
		Expect(json.Unmarshal([]byte(req.Body), &body)).To(Succeed())
		return body
	}

	BeforeEach(func() {
		fake = newFakeMatchable()

		mockSysInfo = &sysinfoservice.MockSystemInfoService{}
		mockSysInfo.On("DeviceModel").Return("x86_64").Maybe()
		mockSysInfo.On("DeviceType").Return(sysinfoservice.Desktop).Maybe()
		mockSysInfo.On("OperatingSystem").Return("Linux 5.15").Maybe()

		current = settings.Defaults()
		current.AppKey = "app-key"
		current.GameVersion = "1.2"
		current.ActionsEndpoint = fake.URL("/actions")
		current.RecommendationsEndpoint = fake.URL("/recommendations")
		current.StatsEndpoint = fake.URL("/stats")
		current.AdvisorEndpoint = fake.URL("/advisor")

		buildClient()
	})

	AfterEach(func() {
		Expect(sut.Close()).To(Succeed())
		fake.Close()
	})

	Describe("Construction", func() {
		It("rejects invalid settings", func() {
			current.AppKey = ""
			_, err := New(logger.MockLogger(), settings.Static(current))
			Expect(err).Should(HaveOccurred())
		})

		It("seeds the enablement flag from settings", func() {
			current.Enabled = false
			disabled, err := New(logger.MockLogger(), settings.Static(current))
			Expect(err).ShouldNot(HaveOccurred())
			defer disabled.Close()

			Expect(disabled.Enabled()).To(BeFalse())
			Expect(sut.Enabled()).To(BeTrue())
		})
	})

	Describe("Submitting actions", func() {
		It("posts start_session once with both headers and a one element array", func() {
			By("Submitting asynchronously")
			result := <-sut.Async(ctx, sut.StartSession)
			Expect(result.Err).ShouldNot(HaveOccurred())

			By("Checking the callback value")
			status, ok, err := result.Response.Get("status")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(status).To(Equal("ok"))

			By("Checking what reached the server")
			requests := fake.Requests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Method).To(Equal(http.MethodPost))
			Expect(requests[0].Path).To(Equal("/actions"))
			Expect(requests[0].Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(requests[0].Header.Get("Authorization")).To(Equal("api_key app-key"))

			body := decodeBody(requests[0])
			Expect(body).To(HaveLen(1))
			Expect(body[0]).To(Equal(map[string]interface{}{
				"type":    "start_session",
				"version": "1.2",
				"date":    float64(now.Unix()),
				"parameters": map[string]interface{}{
					"version": "1.2",
					"system_info": map[string]interface{}{
						"device_model":     "x86_64",
						"device_type":      "Desktop",
						"operating_system": "Linux 5.15",
					},
				},
			}))
		})

		It("identifies actions by player when configured to", func() {
			current.Identity = action.ByPlayerId
			current.PlayerId = "player-42"
			buildClient()

			_, err := sut.Retention(ctx, "daily_reward")
			Expect(err).ShouldNot(HaveOccurred())

			body := decodeBody(fake.Requests()[0])
			Expect(body[0]).To(HaveKeyWithValue("player_id", "player-42"))
			Expect(body[0]).NotTo(HaveKey("version"))
			Expect(body[0]["parameters"]).To(Equal(map[string]interface{}{"retention_type": "daily_reward"}))
		})

		It("sends every named action with its fixed type", func() {
			params := map[string]interface{}{"game_type": "tactical"}
			calls := map[string]Call{
				action.StartGameType:  func(ctx context.Context) (*response.Response, error) { return sut.StartGame(ctx, params) },
				action.GameResultType: func(ctx context.Context) (*response.Response, error) { return sut.GameResult(ctx, params) },
				action.RetentionType:  func(ctx context.Context) (*response.Response, error) { return sut.Retention(ctx, "invite_friend") },
				action.ConversionType: func(ctx context.Context) (*response.Response, error) { return sut.Conversion(ctx, "purchase") },
			}

			for wantType, call := range calls {
				_, err := call(ctx)
				Expect(err).ShouldNot(HaveOccurred())

				requests := fake.Requests()
				body := decodeBody(requests[len(requests)-1])
				Expect(body[0]["type"]).To(Equal(wantType))
			}
			Expect(fake.Requests()).To(HaveLen(len(calls)))
		})

		It("never hits the network for an empty type", func() {
			_, err := sut.SendAction(ctx, "", nil)
			Expect(err).To(MatchError(action.ErrMissingType))

			results := sut.SendActionAsync(ctx, "", nil)
			Eventually(results).Should(BeClosed())

			var invoked int32
			sut.Callback(ctx, func(ctx context.Context) (*response.Response, error) {
				return sut.SendAction(ctx, "", nil)
			}, func(Result) {
				atomic.StoreInt32(&invoked, 1)
			})
			Consistently(func() int32 { return atomic.LoadInt32(&invoked) }, 300*time.Millisecond).Should(BeZero())

			Expect(fake.Requests()).To(BeEmpty())
		})
	})

	Describe("Fetching", func() {
		It("sends only the authorization header for recommendations", func() {
			fake.Reply(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"recommendations":[{"id":"offer-1"}]}`))
			})

			resp, err := sut.GetRecommendations(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(resp.Lookup("recommendations.0.id").String()).To(Equal("offer-1"))

			req := fake.Requests()[0]
			Expect(req.Method).To(Equal(http.MethodGet))
			Expect(req.Path).To(Equal("/recommendations"))
			Expect(req.Header.Get("Authorization")).To(Equal("api_key app-key"))
			Expect(req.Header.Get("Content-Type")).To(BeEmpty())
			Expect(req.Body).To(BeEmpty())
		})

		It("sends no headers for stats and advisor", func() {
			_, err := sut.GetStats(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			_, err = sut.GetAdvisor(ctx)
			Expect(err).ShouldNot(HaveOccurred())

			requests := fake.Requests()
			Expect(requests).To(HaveLen(2))
			Expect(requests[0].Path).To(Equal("/stats"))
			Expect(requests[1].Path).To(Equal("/advisor"))
			for _, req := range requests {
				Expect(req.Method).To(Equal(http.MethodGet))
				Expect(req.Header.Get("Authorization")).To(BeEmpty())
			}
		})

		It("fails when an endpoint isn't configured", func() {
			current.AdvisorEndpoint = ""
			buildClient()

			_, err := sut.GetAdvisor(ctx)
			Expect(errors.Is(err, ErrEndpointNotConfigured)).To(BeTrue())
			Expect(fake.Requests()).To(BeEmpty())
		})
	})

	Describe("Enablement gate", func() {
		BeforeEach(func() {
			sut.Disable()
		})

		It("never fetches recommendations or invokes the callback", func() {
			var invoked int32
			sut.Callback(ctx, sut.GetRecommendations, func(Result) {
				atomic.StoreInt32(&invoked, 1)
			})

			Consistently(func() int32 { return atomic.LoadInt32(&invoked) }, 500*time.Millisecond).Should(BeZero())
			Expect(fake.Requests()).To(BeEmpty())
		})

		It("turns every public entry point into a no-op", func() {
			calls := []Call{
				sut.StartSession,
				sut.GetRecommendations,
				sut.GetStats,
				sut.GetAdvisor,
				func(ctx context.Context) (*response.Response, error) { return sut.SendAction(ctx, "custom", nil) },
				func(ctx context.Context) (*response.Response, error) { return sut.StartGame(ctx, nil) },
				func(ctx context.Context) (*response.Response, error) { return sut.GameResult(ctx, nil) },
				func(ctx context.Context) (*response.Response, error) { return sut.Retention(ctx, "daily_reward") },
				func(ctx context.Context) (*response.Response, error) { return sut.Conversion(ctx, "purchase") },
			}

			for _, call := range calls {
				_, err := call(ctx)
				Expect(err).To(MatchError(ErrDisabled))
				Eventually(sut.Async(ctx, call)).Should(BeClosed())
			}

			Expect(fake.Requests()).To(BeEmpty())
			mockSysInfo.AssertNotCalled(GinkgoT(), "DeviceModel")
		})

		It("resumes once enabled again", func() {
			sut.Enable()

			_, err := sut.StartGame(ctx, nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(fake.Requests()).To(HaveLen(1))
		})
	})

	Describe("Failures", func() {
		It("delivers a transport error when the service is unreachable", func() {
			fake.Close()

			result := <-sut.Async(ctx, sut.GetStats)
			Expect(result.Response).To(BeNil())

			var transportErr *TransportError
			Expect(errors.As(result.Err, &transportErr)).To(BeTrue())
			Expect(transportErr.Method).To(Equal(http.MethodGet))
		})

		It("delivers a parse error with the raw body", func() {
			fake.Reply(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>oops</html>"))
			})

			result := <-sut.SendActionAsync(ctx, "start_game", nil)

			var parseErr *ParseError
			Expect(errors.As(result.Err, &parseErr)).To(BeTrue())
			Expect(result.Response.Text()).To(Equal("<html>oops</html>"))
			Expect(parseErr.Response).To(BeIdenticalTo(result.Response))
		})

		It("delivers a status error with the parsed body", func() {
			fake.Reply(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"bad key"}`))
			})

			result := <-sut.Async(ctx, sut.GetRecommendations)

			var statusErr *StatusError
			Expect(errors.As(result.Err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusUnauthorized))

			value, _, err := result.Response.Get("error")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(value).To(Equal("bad key"))
		})
	})

	Describe("Retrying", func() {
		It("resends the action after a 503 when retries are configured", func() {
			current.RetryMaxElapsed = settings.Duration(10 * time.Second)
			buildClient()

			var replies int32
			fake.Reply(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&replies, 1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte(`{"status":"ok"}`))
			})

			resp, err := sut.Conversion(ctx, "purchase")
			Expect(err).ShouldNot(HaveOccurred())

			ack, err := resp.Ack()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ack.Status).To(Equal("ok"))

			requests := fake.Requests()
			Expect(requests).To(HaveLen(2))
			Expect(requests[1].Body).To(Equal(requests[0].Body))
		})

		It("sends once when retries are off", func() {
			fake.Reply(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			})

			_, err := sut.Conversion(ctx, "purchase")

			var statusErr *StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(fake.Requests()).To(HaveLen(1))
		})
	})

	Describe("Lifecycle", func() {
		It("cancels in-flight calls on Close", func() {
			fake.Reply(func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			})

			results := sut.Async(ctx, sut.GetStats)
			Eventually(fake.Requests).Should(HaveLen(1))

			Expect(sut.Close()).To(Succeed())

			var result Result
			Eventually(results).Should(Receive(&result))
			Expect(errors.Is(result.Err, context.Canceled)).To(BeTrue())
		})

		It("refuses new async calls once closed", func() {
			Expect(sut.Close()).To(Succeed())

			var result Result
			Eventually(sut.Async(ctx, sut.GetStats)).Should(Receive(&result))
			Expect(result.Err).To(MatchError(ErrClosed))
			Expect(fake.Requests()).To(BeEmpty())
		})

		It("never calls back for a disabled client once closed", func() {
			sut.Disable()
			Expect(sut.Close()).To(Succeed())

			var invoked int32
			sut.Callback(ctx, sut.GetRecommendations, func(Result) {
				atomic.AddInt32(&invoked, 1)
			})
			Eventually(sut.Async(ctx, sut.GetStats)).Should(BeClosed())

			Consistently(func() int32 { return atomic.LoadInt32(&invoked) }, 300*time.Millisecond).Should(BeZero())
			Expect(fake.Requests()).To(BeEmpty())
		})

		It("never calls back for an empty type once closed", func() {
			Expect(sut.Close()).To(Succeed())

			var invoked int32
			sut.Callback(ctx, func(ctx context.Context) (*response.Response, error) {
				return sut.SendAction(ctx, "", nil)
			}, func(Result) {
				atomic.AddInt32(&invoked, 1)
			})
			Eventually(sut.SendActionAsync(ctx, " ", nil)).Should(BeClosed())

			Consistently(func() int32 { return atomic.LoadInt32(&invoked) }, 300*time.Millisecond).Should(BeZero())
			Expect(fake.Requests()).To(BeEmpty())
		})

		It("reads settings from the provider on every call", func() {
			store, err := settings.LoadStore(logger.MockLogger(), filepath.Join(GinkgoT().TempDir(), "settings.json"), current)
			Expect(err).ShouldNot(HaveOccurred())

			sut.Close()
			sut, err = New(logger.MockLogger(), store)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(store.Update(func(s *settings.Settings) { s.AppKey = "rotated" })).To(Succeed())

			_, err = sut.GetRecommendations(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(fake.Requests()[0].Header.Get("Authorization")).To(Equal("api_key rotated"))
		})
	})
})
