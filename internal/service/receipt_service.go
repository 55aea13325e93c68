package service

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/munify/munify-api/internal/models"
	appErrors "github.com/munify/munify-api/pkg/errors"
	"github.com/munify/munify-api/pkg/export"
	"github.com/munify/munify-api/pkg/storage"
)

// ReceiptService renders acknowledgment receipt PDFs for approved
// commitments, stores them, and issues signed download tokens.
type ReceiptService struct {
	renderer *export.ReceiptRenderer
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
}

// NewReceiptService constructs ReceiptService.
func NewReceiptService(renderer *export.ReceiptRenderer, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptService{renderer: renderer, storage: store, signer: signer, logger: logger}
}

// Generate renders and stores the receipt for an approved commitment and
// returns a signed download token.
func (s *ReceiptService) Generate(commitment *models.Commitment, project *models.Project, organizationName string) (string, error) {
	if commitment.ApprovedAt == nil || commitment.ApprovedBy == nil {
		return "", fmt.Errorf("commitment %d has no approval record", commitment.ID)
	}
	receipt := export.Receipt{
		CommitmentID:       commitment.ID,
		ProjectReferenceID: commitment.ProjectReferenceID,
		ProjectTitle:       project.Title,
		OrganizationName:   organizationName,
		CommittedBy:        commitment.CommittedBy,
		Amount:             fmt.Sprintf("%.2f", commitment.Amount),
		Currency:           commitment.Currency,
		FundingMode:        string(commitment.FundingMode),
		ApprovedBy:         *commitment.ApprovedBy,
		ApprovedAt:         *commitment.ApprovedAt,
	}
	pdf, err := s.renderer.Render(receipt)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	relPath := fmt.Sprintf("receipts/ack-%d.pdf", commitment.ID)
	if _, err := s.storage.Save(relPath, pdf); err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}

	token, _, err := s.signer.Generate(fmt.Sprintf("commitment-%d", commitment.ID), relPath)
	if err != nil {
		return "", fmt.Errorf("sign receipt url: %w", err)
	}
	return token, nil
}

// Open validates a signed token and returns the stored receipt file.
func (s *ReceiptService) Open(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired receipt token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
	}
	return file, nil
}
