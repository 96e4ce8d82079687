// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func call(method, path string, body any, token string) (int, map[string]any) {
	GinkgoHelper()

	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

var _ = Describe("Auth API", func() {
	ann := map[string]any{"name": "Ann", "email": "a@x.com", "password": "pw123", "studentId": "S1"}
	login := func(password string) (int, map[string]any) {
		return call(http.MethodPost, "/auth/login", map[string]any{"email": "a@x.com", "password": password}, "")
	}

	It("runs the register, login and reset flow", func() {
		status, body := call(http.MethodPost, "/auth/register", ann, "")
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body).To(HaveKeyWithValue("role", "student"))

		status, body = login("pw123")
		Expect(status).To(Equal(http.StatusOK))
		session := body["token"].(string)

		status, _ = login("wrong")
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, body = call(http.MethodGet, "/auth/me", nil, session)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("studentId", "S1"))
		Expect(body).NotTo(HaveKey("passwordHash"))

		status, body = call(http.MethodPost, "/auth/forgot-password", map[string]any{"email": "a@x.com", "studentId": "S1"}, "")
		Expect(status).To(Equal(http.StatusOK))
		reset := body["token"].(string)

		status, _ = call(http.MethodPost, "/auth/reset-password", map[string]any{"token": reset, "newPassword": "newpw"}, "")
		Expect(status).To(Equal(http.StatusOK))

		status, _ = login("newpw")
		Expect(status).To(Equal(http.StatusOK))
		status, _ = login("pw123")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("lets exactly one of two racing registrations win", func() {
		statuses := make([]int, 2)
		var wg sync.WaitGroup
		for i := range statuses {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses[i], _ = call(http.MethodPost, "/auth/register", ann, "")
			}()
		}
		wg.Wait()

		Expect(statuses).To(ConsistOf(http.StatusCreated, http.StatusBadRequest))
	})
})
