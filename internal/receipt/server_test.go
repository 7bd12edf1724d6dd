package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		extractor   *mockExtractor
		storage     *mockStorage
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	rebuild := func() {
		service = NewService(db, extractor, storage, nil)
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	}

	BeforeEach(func() {
		db = newMockDB()
		extractor = newMockExtractor()
		storage = newMockStorage()
		auth = BasicAuth{}
		rebuild()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleListReceipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1", Vendor: "Joe's Diner"}
				db.receipts["id2"] = &Receipt{ID: "id2", Vendor: "Shell"}
				rebuild()
			})

			It("should return status OK", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			It("should return all receipts", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var receipts []*Receipt
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &receipts)).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(2))
			})

			It("should set Content-Type to application/json", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var receipts []*Receipt
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &receipts)).NotTo(HaveOccurred())
				Expect(receipts).To(BeEmpty())
			})
		})

		When("service returns an error", func() {
			BeforeEach(func() {
				db.listErr = errors.New("service error")
				rebuild()
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleScanReceipt", func() {
		uploadFile := func(filename string) *http.Response {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			part, _ := writer.CreateFormFile("file", filename)
			part.Write([]byte("fake image data"))
			writer.Close()

			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/scan", writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the scan succeeds", func() {
			It("should return status OK", func() {
				resp := uploadFile("test.jpg")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			It("should return the extracted record with an ID", func() {
				resp := uploadFile("test.jpg")
				defer resp.Body.Close()
				var receipt Receipt
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &receipt)).NotTo(HaveOccurred())
				Expect(receipt.ID).NotTo(BeEmpty())
				Expect(receipt.Vendor).To(Equal("Joe's Diner"))
				Expect(receipt.Total).To(Equal(25.99))
				Expect(receipt.Category).To(Equal("Food & Dining"))
			})

			It("should NOT persist the record", func() {
				resp := uploadFile("test.jpg")
				resp.Body.Close()
				Expect(db.receipts).To(BeEmpty())
			})

			It("should set Content-Type to application/json", func() {
				resp := uploadFile("test.jpg")
				defer resp.Body.Close()
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})
		})

		When("the upload is a PDF", func() {
			It("should return status OK", func() {
				resp := uploadFile("test.pdf")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/scan", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("file"))
			})
		})

		When("the multipart form is invalid", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/scan", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Error parsing form"))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.extractErr = errors.New("scan error")
				rebuild()
			})

			It("should return the error as JSON", func() {
				resp := uploadFile("test.jpg")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("scan error"))
			})
		})
	})

	Describe("handleCreateReceipt", func() {
		postReceipt := func(receipt *Receipt) *http.Response {
			bodyBytes, _ := json.Marshal(receipt)
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", bytes.NewBuffer(bodyBytes))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the confirmed record is valid", func() {
			It("should return status Created", func() {
				resp := postReceipt(&Receipt{
					ID:       "test-id",
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Date:     "15/01/24",
					Category: "Food & Dining",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
			})

			It("should persist the record", func() {
				resp := postReceipt(&Receipt{
					ID:       "test-id",
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Date:     "15/01/24",
					Category: "Food & Dining",
				})
				resp.Body.Close()
				Expect(db.receipts).To(HaveKey("test-id"))
			})

			It("should teach the vendor memory", func() {
				resp := postReceipt(&Receipt{
					ID:       "test-id",
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Date:     "15/01/24",
					Category: "Food & Dining",
				})
				resp.Body.Close()
				Expect(db.vendorCategories).To(HaveKeyWithValue("joe's diner", "Food & Dining"))
			})
		})

		When("the body is invalid JSON", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", bytes.NewBufferString("invalid json"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the category is invalid", func() {
			It("should return the validation error as JSON", func() {
				resp := postReceipt(&Receipt{
					ID:       "test-id",
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Category: "Gadgets",
				})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var response map[string]string
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("category"))
			})
		})
	})

	Describe("handleUpdateReceipt", func() {
		BeforeEach(func() {
			db.receipts["test-id"] = &Receipt{
				ID:          "test-id",
				Vendor:      "Joe's Diner",
				Total:       25.99,
				Date:        "15/01/24",
				Category:    "Food & Dining",
				Filename:    "test-id_receipt.jpg",
				ContentType: "image/jpeg",
				CreatedAt:   time.Now(),
			}
			rebuild()
		})

		putReceipt := func(id string, receipt *Receipt) *http.Response {
			bodyBytes, _ := json.Marshal(receipt)
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/receipts/"+id, bytes.NewBuffer(bodyBytes))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the edit is valid", func() {
			It("should return status OK", func() {
				resp := putReceipt("test-id", &Receipt{
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Date:     "15/01/24",
					Category: "Groceries",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})

			It("should store the edited category", func() {
				resp := putReceipt("test-id", &Receipt{
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Date:     "15/01/24",
					Category: "Groceries",
				})
				resp.Body.Close()
				Expect(db.receipts["test-id"].Category).To(Equal("Groceries"))
			})

			It("should take the ID from the path, not the body", func() {
				resp := putReceipt("test-id", &Receipt{
					ID:       "bogus",
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Date:     "15/01/24",
					Category: "Groceries",
				})
				resp.Body.Close()
				Expect(db.receipts).To(HaveKey("test-id"))
				Expect(db.receipts).NotTo(HaveKey("bogus"))
			})
		})

		When("the receipt does not exist", func() {
			It("should return status Bad Request", func() {
				resp := putReceipt("nonexistent", &Receipt{
					Vendor:   "Joe's Diner",
					Total:    25.99,
					Category: "Groceries",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetReceipt", func() {
		When("receipt exists", func() {
			BeforeEach(func() {
				db.receipts["test-id"] = &Receipt{ID: "test-id", Vendor: "Joe's Diner"}
				rebuild()
			})

			It("should return the correct receipt", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/test-id")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var got Receipt
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &got)).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal("test-id"))
				Expect(got.Vendor).To(Equal("Joe's Diner"))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Receipt not found"))
			})
		})
	})

	Describe("handleGetReceiptFile", func() {
		When("receipt and file exist", func() {
			BeforeEach(func() {
				db.receipts["test-id"] = &Receipt{
					ID:          "test-id",
					Filename:    "test-file.jpg",
					ContentType: "image/jpeg",
				}
				storage.files["test-file.jpg"] = []byte("file content")
				rebuild()
			})

			It("should return the file content with its content type", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/test-id/file")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal("file content"))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("file does not exist in storage", func() {
			BeforeEach(func() {
				db.receipts["test-id"] = &Receipt{
					ID:          "test-id",
					Filename:    "missing-file.jpg",
					ContentType: "image/jpeg",
				}
				rebuild()
			})

			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/test-id/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleDeleteReceipt", func() {
		When("deletion succeeds", func() {
			BeforeEach(func() {
				db.receipts["test-id"] = &Receipt{
					ID:       "test-id",
					Filename: "test-file.jpg",
				}
				storage.files["test-file.jpg"] = []byte("data")
				rebuild()
			})

			It("should return status No Content", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/test-id", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				resp.Body.Close()
			})

			It("should remove the receipt from the database", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/test-id", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(db.receipts).NotTo(HaveKey("test-id"))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Internal Server Error", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/nonexistent", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleSummary", func() {
		BeforeEach(func() {
			db.settings = &Settings{MonthlyBudget: 100, Currency: "USD"}
			db.receipts["r1"] = &Receipt{ID: "r1", Vendor: "Joe's Diner", Total: 25.99, Category: "Food & Dining"}
			db.receipts["r2"] = &Receipt{ID: "r2", Vendor: "Shell", Total: 40.00, Category: "Travel"}
			rebuild()
		})

		It("should return the computed metrics", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/summary")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var summary Summary
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &summary)).NotTo(HaveOccurred())
			Expect(summary.ReceiptCount).To(Equal(2))
			Expect(summary.TotalSpent).To(BeNumerically("~", 65.99, 0.001))
			Expect(summary.BiggestVendor).To(Equal("Shell"))
			Expect(summary.Currency).To(Equal("USD"))
		})
	})

	Describe("handleListCategories", func() {
		It("should return the fixed enumeration", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/categories")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var categories []string
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &categories)).NotTo(HaveOccurred())
			Expect(categories).To(ContainElements("Food & Dining", "Travel", "Miscellaneous"))
		})
	})

	Describe("handleGetSettings", func() {
		It("should return the stored preferences", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/settings")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var settings Settings
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &settings)).NotTo(HaveOccurred())
			Expect(settings.Currency).To(Equal("USD"))
		})
	})

	Describe("handleSaveSettings", func() {
		putSettings := func(settings *Settings) *http.Response {
			bodyBytes, _ := json.Marshal(settings)
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/settings", bytes.NewBuffer(bodyBytes))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the settings are valid", func() {
			It("should store them", func() {
				resp := putSettings(&Settings{MonthlyBudget: 500, Currency: "EUR"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
				Expect(db.settings.Currency).To(Equal("EUR"))
			})
		})

		When("the currency is unsupported", func() {
			It("should return status Bad Request", func() {
				resp := putSettings(&Settings{MonthlyBudget: 500, Currency: "XYZ"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("authenticate", func() {
		var result bool

		When("no auth is configured", func() {
			It("should return true", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				result = server.authenticate(req)
				Expect(result).To(BeTrue())
			})
		})

		When("valid credentials are provided", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				rebuild()
			})

			It("should return true", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:pass"))
				req.Header.Set("Authorization", "Basic "+credentials)
				result = server.authenticate(req)
				Expect(result).To(BeTrue())
			})
		})

		When("invalid credentials are provided", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				rebuild()
			})

			It("should return false", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:wrong"))
				req.Header.Set("Authorization", "Basic "+credentials)
				result = server.authenticate(req)
				Expect(result).To(BeFalse())
			})
		})

		When("no authorization header is provided", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				rebuild()
			})

			It("should return false", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				result = server.authenticate(req)
				Expect(result).To(BeFalse())
			})
		})
	})

	Describe("requireAuth", func() {
		When("request is unauthorized", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				rebuild()
			})

			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})

			It("should set WWW-Authenticate header", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			})
		})
	})
})
