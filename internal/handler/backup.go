package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/models"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BackupHandler writes encrypted ledger snapshots for the owner.
// Snapshots are for off-site safekeeping; there is no restore endpoint.
type BackupHandler struct {
	DB         *gorm.DB
	Ledger     *ledger.Service
	EncryptKey string
	BackupDir  string
}

func NewBackupHandler(db *gorm.DB, svc *ledger.Service, encryptKey, backupDir string) *BackupHandler {
	return &BackupHandler{
		DB:         db,
		Ledger:     svc,
		EncryptKey: encryptKey,
		BackupDir:  backupDir,
	}
}

// Snapshot is the plaintext content of a backup file.
type Snapshot struct {
	Owner       string                  `json:"owner"`
	Created     time.Time               `json:"created"`
	Properties  []models.Property       `json:"properties"`
	Payments    []models.PaymentFact    `json:"payments"`
	Withdrawals []models.WithdrawalFact `json:"withdrawals"`
	Accounts    []models.TokenAccount   `json:"accounts"`
}

// snapshot reads everything inside one transaction so the parts agree.
func (h *BackupHandler) snapshot(c *gin.Context) (*Snapshot, error) {
	s := &Snapshot{Owner: h.Ledger.Owner(), Created: time.Now().UTC()}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("id ASC").Find(&s.Properties).Error; err != nil {
			return err
		}
		if err := tx.Order("seq ASC").Find(&s.Payments).Error; err != nil {
			return err
		}
		if err := tx.Order("seq ASC").Find(&s.Withdrawals).Error; err != nil {
			return err
		}
		return tx.Order("address ASC").Find(&s.Accounts).Error
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return s, nil
}

func (h *BackupHandler) CreateBackup(c *gin.Context) {
	user, ok := requireOwner(c, h.Ledger.Guard())
	if !ok {
		return
	}
	if h.EncryptKey == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "security.encryption_key is not configured")
		return
	}

	snap, err := h.snapshot(c)
	if err != nil {
		_ = c.Error(err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to read ledger")
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to encode snapshot")
		return
	}
	enc, err := util.EncryptAES(h.EncryptKey, raw)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to encrypt snapshot")
		return
	}

	if err := os.MkdirAll(h.BackupDir, 0o755); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create backup dir")
		return
	}
	fileName := fmt.Sprintf("vault-%s-%s.bin", snap.Created.Format("20060102T150405"), uuid.New().String()[:8])
	filePath := filepath.Join(h.BackupDir, fileName)
	if err := os.WriteFile(filePath, enc, 0o600); err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to write backup file")
		return
	}

	backup := models.Backup{
		UserID:   user.ID,
		FileName: fileName,
		FilePath: filePath,
		Size:     int64(len(enc)),
	}
	if err := h.DB.Create(&backup).Error; err != nil {
		_ = os.Remove(filePath)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to save backup record")
		return
	}

	util.Success(c, util.Response{
		"backup": gin.H{
			"id":          backup.ID,
			"file_name":   backup.FileName,
			"size":        backup.Size,
			"created_at":  backup.CreatedAt,
			"properties":  len(snap.Properties),
			"payments":    len(snap.Payments),
			"withdrawals": len(snap.Withdrawals),
		},
	})
}

func (h *BackupHandler) ListBackups(c *gin.Context) {
	if _, ok := requireOwner(c, h.Ledger.Guard()); !ok {
		return
	}

	var list []models.Backup
	if err := h.DB.Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to query backups")
		return
	}

	items := make([]gin.H, 0, len(list))
	for i := range list {
		b := &list[i]
		items = append(items, gin.H{
			"id":         b.ID,
			"file_name":  b.FileName,
			"size":       b.Size,
			"created_at": b.CreatedAt,
		})
	}
	util.Success(c, util.Response{"items": items})
}

func (h *BackupHandler) find(c *gin.Context) (*models.Backup, bool) {
	var backup models.Backup
	if err := h.DB.Where("id = ?", c.Param("id")).First(&backup).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "backup not found")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to query backup")
		}
		return nil, false
	}
	return &backup, true
}

func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	if _, ok := requireOwner(c, h.Ledger.Guard()); !ok {
		return
	}
	backup, ok := h.find(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", backup.FileName))
	c.File(backup.FilePath)
}

// DeleteBackup removes the file first, then the record.
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if _, ok := requireOwner(c, h.Ledger.Guard()); !ok {
		return
	}
	backup, ok := h.find(c)
	if !ok {
		return
	}
	if err := os.Remove(backup.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to delete backup file")
		return
	}
	if err := h.DB.Delete(backup).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to delete backup record")
		return
	}
	util.Success(c, util.Response{"message": "deleted"})
}

// DecodeSnapshot decrypts and parses a backup file's content.
func DecodeSnapshot(encryptKey string, data []byte) (*Snapshot, error) {
	raw, err := util.DecryptAES(encryptKey, data)
	if err != nil {
		return nil, fmt.Errorf("decrypt backup: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return &s, nil
}
