package lawyers

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// demoLawyers is the starter directory for a fresh environment.
var demoLawyers = []models.Lawyer{
	{
		FullName:          "Dra. Ana Silva",
		Specialty:         "Direito de Família",
		Specializations:   datatypes.JSONSlice[string]{"Divórcio", "Pensão de alimentos", "Guarda de menores"},
		OAMNumber:         "OAM-12345",
		ProfessionalEmail: "ana.silva@adv.mz",
		ProfessionalPhone: "+258 84 111 1111",
		Bio:               "Advogada com 10 anos de experiência em direito da família.",
		IsOnline:          true,
	},
	{
		FullName:          "Dr. Carlos Mendes",
		Specialty:         "Direito Laboral",
		Specializations:   datatypes.JSONSlice[string]{"Despedimentos", "Contratos de trabalho"},
		OAMNumber:         "OAM-23456",
		ProfessionalEmail: "carlos.mendes@adv.mz",
		ProfessionalPhone: "+258 84 222 2222",
		Bio:               "Especialista em relações laborais e contencioso do trabalho.",
		IsOnline:          true,
	},
	{
		FullName:          "Dra. Maria Santos",
		Specialty:         "Direito Civil",
		Specializations:   datatypes.JSONSlice[string]{"Contratos", "Responsabilidade civil"},
		OAMNumber:         "OAM-34567",
		ProfessionalEmail: "maria.santos@adv.mz",
		ProfessionalPhone: "+258 84 333 3333",
		Bio:               "Assessoria em contratos e litígios civis.",
	},
	{
		FullName:          "Dr. João Machava",
		Specialty:         "Direito Imobiliário",
		Specializations:   datatypes.JSONSlice[string]{"DUAT", "Arrendamento", "Compra e venda"},
		OAMNumber:         "OAM-45678",
		ProfessionalEmail: "joao.machava@adv.mz",
		ProfessionalPhone: "+258 85 444 4444",
		Bio:               "Questões de terra, DUAT e transações imobiliárias.",
		IsOnline:          true,
	},
}

// Seed inserts the demo lawyers that do not exist yet (matched by
// professional e-mail) and returns how many were created.
func Seed(ctx context.Context, db *gorm.DB, password string) (int, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, errors.Wrap(err, "hash seed password")
	}

	created := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range demoLawyers {
			var n int64
			if err := tx.Model(&models.Lawyer{}).Where("professional_email = ?", l.ProfessionalEmail).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			l.PasswordHash = string(hash)
			l.IsActive = true
			l.VerificationStatus = models.VerificationVerified
			if err := tx.Create(&l).Error; err != nil {
				return errors.Wrapf(err, "seed %s", l.ProfessionalEmail)
			}
			created++
		}
		return nil
	})
	return created, err
}
