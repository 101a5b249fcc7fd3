package evaluation_test

import (
	"context"
	"math"
	"os"

	. "github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/evaluation/evaltest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Similarity", func() {
	var (
		ctx        context.Context
		similarity *Similarity
	)

	BeforeEach(func() {
		ctx = context.Background()
		similarity = lexicalSimilarity()
	})

	It("scores identical texts close to 1", func() {
		Expect(similarity.Calculate(ctx, "Where is my order?", "Where is my order?")).To(BeNumerically("~", 1, 1e-6))
	})

	It("is symmetric", func() {
		a := "You can track your order from your account page."
		b := "Orders can be tracked in the account section."
		Expect(similarity.Calculate(ctx, a, b)).To(BeNumerically("~", similarity.Calculate(ctx, b, a), 1e-9))
	})

	It("ranks related texts above unrelated ones", func() {
		question := "How do I track my order?"
		related := similarity.Calculate(ctx, question, "Track your order from the orders page.")
		unrelated := similarity.Calculate(ctx, question, "Gift cards never expire.")
		Expect(related).To(BeNumerically(">", unrelated))
	})

	It("stays within [0, 1]", func() {
		for _, pair := range [][2]string{{"a b c", "x y z"}, {"refund", "refunds"}, {"1", "2"}} {
			score := similarity.Calculate(ctx, pair[0], pair[1])
			Expect(score).To(And(BeNumerically(">=", 0), BeNumerically("<=", 1)))
		}
	})

	It("returns 0 when a text cannot be encoded", func() {
		Expect(similarity.Calculate(ctx, "", "Where is my order?")).To(BeZero())
		Expect(similarity.Calculate(ctx, "?!", "...")).To(BeZero())
	})

	It("returns 0 when the encoder fails", func() {
		Expect(NewSimilarity(failingEncoder{}).Calculate(ctx, "a", "a")).To(BeZero())
	})

	It("returns 0 without an encoder", func() {
		Expect(NewSimilarity(nil).Calculate(ctx, "a", "a")).To(BeZero())
	})

	It("picks the best candidate", func() {
		best := similarity.Best(ctx, "refund policy", []string{"shipping times", "refund policy", ""})
		Expect(best).To(BeNumerically("~", 1, 1e-6))
		Expect(similarity.Best(ctx, "refund policy", nil)).To(BeZero())
	})
})

var _ = Describe("Cosine", func() {
	It("computes the cosine of two vectors", func() {
		sim, err := Cosine([]float32{1, 0}, []float32{1, 1})
		Expect(err).ToNot(HaveOccurred())
		Expect(sim).To(BeNumerically("~", 1/math.Sqrt2, 1e-6))
	})

	DescribeTable("rejects unusable vectors",
		func(a, b []float32) {
			_, err := Cosine(a, b)
			Expect(err).To(HaveOccurred())
		},
		Entry("length mismatch", []float32{1}, []float32{1, 2}),
		Entry("empty", []float32{}, []float32{}),
		Entry("zero vector", []float32{0, 0}, []float32{1, 0}),
		Entry("NaN", []float32{float32(math.NaN()), 1}, []float32{1, 1}),
	)
})

var _ = Describe("SentenceEncoder", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("rejects empty text without loading the model", func() {
		encoder := NewSentenceEncoder(SentenceEncoderOptions{ModelsDir: GinkgoT().TempDir(), Offline: true})
		_, err := encoder.Embed(ctx, "   ")
		Expect(err).To(MatchError(ContainSubstring("empty text")))
	})

	It("scores 0 when the model is not available offline", func() {
		encoder := NewSentenceEncoder(SentenceEncoderOptions{ModelsDir: GinkgoT().TempDir(), Offline: true})
		_, err := encoder.Embed(ctx, "Where is my order?")
		Expect(err).To(MatchError(ContainSubstring(DefaultSentenceModel)))
		Expect(NewSimilarity(encoder).Calculate(ctx, "Where is my order?", "Where is my order?")).To(BeZero())
	})

	Context("with all-MiniLM-L6-v2", Label("model"), func() {
		var similarity *Similarity

		BeforeEach(func() {
			dir := os.Getenv("FAQRECALL_MODELS_DIR")
			if dir == "" {
				Skip("FAQRECALL_MODELS_DIR not set")
			}
			similarity = NewSimilarity(NewSentenceEncoder(SentenceEncoderOptions{ModelsDir: dir}))
		})

		It("produces sentence vectors", func() {
			encoder := NewSentenceEncoder(SentenceEncoderOptions{ModelsDir: os.Getenv("FAQRECALL_MODELS_DIR")})
			v, err := encoder.Embed(ctx, "Where is my order?")
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(HaveLen(DefaultEncoderDimensions))
		})

		It("scores paraphrases without shared words as similar", func() {
			paraphrase := similarity.Calculate(ctx, "Your parcel ships in 2 days", "Delivery takes two days")
			unrelated := similarity.Calculate(ctx, "Your parcel ships in 2 days", "Gift cards never expire")
			Expect(paraphrase).To(BeNumerically(">", 0.5))
			Expect(paraphrase).To(BeNumerically(">", unrelated))
		})
	})
})

var _ = Describe("HashingEncoder", func() {
	It("produces deterministic unit vectors", func() {
		encoder := evaltest.NewHashingEncoder(0)
		a, err := encoder.Embed(context.Background(), "Where is my order?")
		Expect(err).ToNot(HaveOccurred())
		b, err := encoder.Embed(context.Background(), "where IS my order")
		Expect(err).ToNot(HaveOccurred())

		Expect(a).To(HaveLen(evaltest.Dimensions))
		Expect(a).To(Equal(b))

		var norm float64
		for _, v := range a {
			norm += float64(v) * float64(v)
		}
		Expect(norm).To(BeNumerically("~", 1, 1e-5))
	})
})
