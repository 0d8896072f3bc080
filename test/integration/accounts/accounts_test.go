// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package accounts_test

import (
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Account lifecycle", func() {
	It("registers, signs in and reads the profile", func() {
		userID := signup("ada@example.com", "first-password")
		Expect(userID).To(Equal(int64(1)))

		token := signin("ada@example.com", "first-password")
		res := call(http.MethodGet, "/profile", token, nil)
		Expect(res.Status).To(Equal(http.StatusOK))
		Expect(res.Body).To(HaveKeyWithValue("email", "ada@example.com"))
		Expect(res.Body).To(HaveKeyWithValue("firstname", "Ada"))
		Expect(res.Body).To(HaveKeyWithValue("entity", "Analytical Engines"))
		Expect(res.Body).To(HaveKeyWithValue("bio", BeNil()))
	})

	It("rejects a duplicate email with 409", func() {
		signup("ada@example.com", "first-password")

		res := call(http.MethodPost, "/signup", "", map[string]any{
			"firstname": "Other",
			"lastname":  "Person",
			"email":     "ada@example.com",
			"password":  "another-password",
			"entity":    "Elsewhere",
		})
		Expect(res.Status).To(Equal(http.StatusConflict))
		Expect(res.Body).To(HaveKey("error"))
	})

	It("rejects a wrong password with 401", func() {
		signup("ada@example.com", "first-password")

		res := call(http.MethodPost, "/signin", "", map[string]any{
			"email": "ada@example.com", "password": "wrong-password",
		})
		Expect(res.Status).To(Equal(http.StatusUnauthorized))
	})

	It("updates only the supplied profile fields", func() {
		signup("ada@example.com", "first-password")
		token := signin("ada@example.com", "first-password")

		res := call(http.MethodPut, "/profile", token, map[string]any{
			"bio":             "Wrote the first program",
			"profile_picture": "https://example.com/ada.png",
		})
		Expect(res.Status).To(Equal(http.StatusOK))

		res = call(http.MethodGet, "/profile", token, nil)
		Expect(res.Body).To(HaveKeyWithValue("firstname", "Ada"))
		Expect(res.Body).To(HaveKeyWithValue("bio", "Wrote the first program"))
		Expect(res.Body).To(HaveKeyWithValue("profile_picture", "https://example.com/ada.png"))
	})

	It("requires a token for protected routes", func() {
		res := call(http.MethodGet, "/profile", "", nil)
		Expect(res.Status).To(Equal(http.StatusUnauthorized))

		res = call(http.MethodGet, "/profile", "not-a-jwt", nil)
		Expect(res.Status).To(Equal(http.StatusUnauthorized))
	})

	It("changes the password", func() {
		signup("ada@example.com", "first-password")
		token := signin("ada@example.com", "first-password")

		res := call(http.MethodPut, "/change-password", token, map[string]any{
			"old_password":     "first-password",
			"new_password":     "second-password",
			"confirm_password": "second-password",
		})
		Expect(res.Status).To(Equal(http.StatusOK))

		res = call(http.MethodPost, "/signin", "", map[string]any{
			"email": "ada@example.com", "password": "first-password",
		})
		Expect(res.Status).To(Equal(http.StatusUnauthorized))
		signin("ada@example.com", "second-password")
	})

	It("deletes the account and its profile", func() {
		signup("ada@example.com", "first-password")
		token := signin("ada@example.com", "first-password")

		res := call(http.MethodDelete, "/profile", token, nil)
		Expect(res.Status).To(Equal(http.StatusOK))

		var profiles int
		Expect(env.db.Pool.QueryRow(env.ctx, `SELECT count(*) FROM profiles`).Scan(&profiles)).To(Succeed())
		Expect(profiles).To(BeZero())

		res = call(http.MethodGet, "/profile", token, nil)
		Expect(res.Status).To(Equal(http.StatusNotFound))

		// The email is free again.
		signup("ada@example.com", "new-password")
	})
})

var _ = Describe("Password reset", func() {
	It("acknowledges unknown emails without sending anything", func() {
		res := call(http.MethodPost, "/forgot-password", "", map[string]any{"email": "nobody@example.com"})
		Expect(res.Status).To(Equal(http.StatusOK))
		Expect(env.mail.count()).To(BeZero())
	})

	It("resets the password exactly once", func() {
		userID := signup("ada@example.com", "first-password")

		res := call(http.MethodPost, "/forgot-password", "", map[string]any{"email": "ada@example.com"})
		Expect(res.Status).To(Equal(http.StatusOK))
		notice := env.mail.last()
		Expect(notice.UserID).To(Equal(userID))
		Expect(notice.Email).To(Equal("ada@example.com"))

		reset := map[string]any{
			"token":            notice.Token,
			"new_password":     "reset-password",
			"confirm_password": "reset-password",
		}
		res = call(http.MethodPost, "/reset-password", "", reset)
		Expect(res.Status).To(Equal(http.StatusOK))
		signin("ada@example.com", "reset-password")

		res = call(http.MethodPost, "/reset-password", "", reset)
		Expect(res.Status).To(Equal(http.StatusUnauthorized))
	})

	It("invalidates an earlier token when a new one is issued", func() {
		signup("ada@example.com", "first-password")

		call(http.MethodPost, "/forgot-password", "", map[string]any{"email": "ada@example.com"})
		first := env.mail.last()
		call(http.MethodPost, "/forgot-password", "", map[string]any{"email": "ada@example.com"})
		second := env.mail.last()
		Expect(second.Token).NotTo(Equal(first.Token))

		res := call(http.MethodPost, "/reset-password", "", map[string]any{
			"token":            first.Token,
			"new_password":     "reset-password",
			"confirm_password": "reset-password",
		})
		Expect(res.Status).To(Equal(http.StatusUnauthorized))
	})

	It("lets only one of many concurrent resets win", func() {
		signup("ada@example.com", "first-password")
		call(http.MethodPost, "/forgot-password", "", map[string]any{"email": "ada@example.com"})
		token := env.mail.last().Token

		const attempts = 8
		statuses := make([]int, attempts)
		var wg sync.WaitGroup
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				res := call(http.MethodPost, "/reset-password", "", map[string]any{
					"token":            token,
					"new_password":     "reset-password",
					"confirm_password": "reset-password",
				})
				statuses[i] = res.Status
			}()
		}
		wg.Wait()

		Expect(statuses).To(ContainElement(http.StatusOK))
		ok := 0
		for _, s := range statuses {
			if s == http.StatusOK {
				ok++
			}
		}
		Expect(ok).To(Equal(1))
	})
})

var _ = Describe("Health", func() {
	It("reports the database up and the queue disabled", func() {
		res := call(http.MethodGet, "/health", "", nil)
		Expect(res.Status).To(Equal(http.StatusOK))
		Expect(res.Body).To(HaveKeyWithValue("status", "healthy"))
		Expect(res.Body).To(HaveKeyWithValue("service", "accountd"))
		Expect(res.Body["database"]).To(HaveKeyWithValue("status", "up"))
		Expect(res.Body["queue"]).To(HaveKeyWithValue("status", "disabled"))
	})
})
